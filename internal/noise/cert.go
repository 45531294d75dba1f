package noise

import (
	"bytes"
	"fmt"

	"github.com/waconnect/waconnect-go/internal/signal/xeddsa"
	"github.com/waconnect/waconnect-go/internal/wap"
)

// WhatsAppRootCAPublicKey is the published root certificate authority
// key WhatsApp uses to sign the intermediate certificate in the Noise
// handshake's ServerHello payload. Verification walks leaf <- intermediate
// <- this root.
var WhatsAppRootCAPublicKey = [32]byte{
	0x14, 0x23, 0x75, 0x57, 0x4d, 0xac, 0xf1, 0xf5,
	0x81, 0x24, 0x09, 0x9d, 0xff, 0xb9, 0x64, 0x62,
	0x50, 0x95, 0x9b, 0x5b, 0x84, 0xb3, 0xf9, 0x62,
	0x01, 0xc3, 0x10, 0x54, 0x08, 0x95, 0x6a, 0x0a,
}

// VerifyCertChain checks the two-certificate leaf/intermediate chain
// against the root CA key and confirms the leaf's embedded key matches
// the static key the server actually presented during the handshake.
func VerifyCertChain(chain *wap.CertChain, serverStaticKey []byte, root [32]byte) error {
	if chain.Leaf == nil || chain.Intermediate == nil {
		return fmt.Errorf("noise: incomplete certificate chain")
	}

	if err := xeddsa.Verify(root, chain.Intermediate.Details, chain.Intermediate.Signature); err != nil {
		return fmt.Errorf("noise: intermediate certificate signature invalid: %w", err)
	}
	intermediateDetails, err := wap.DecodeCertChainDetails(chain.Intermediate.Details)
	if err != nil {
		return fmt.Errorf("noise: malformed intermediate certificate: %w", err)
	}
	var intermediateKey [32]byte
	if len(intermediateDetails.Key) != 32 {
		return fmt.Errorf("noise: intermediate certificate key has wrong length")
	}
	copy(intermediateKey[:], intermediateDetails.Key)

	if err := xeddsa.Verify(intermediateKey, chain.Leaf.Details, chain.Leaf.Signature); err != nil {
		return fmt.Errorf("noise: leaf certificate signature invalid: %w", err)
	}
	leafDetails, err := wap.DecodeCertChainDetails(chain.Leaf.Details)
	if err != nil {
		return fmt.Errorf("noise: malformed leaf certificate: %w", err)
	}

	if !bytes.Equal(leafDetails.Key, serverStaticKey) {
		return fmt.Errorf("noise: leaf certificate key does not match server static key")
	}
	return nil
}
