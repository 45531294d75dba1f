// Package sqlstore is the default on-disk store.Store backend, backed
// by GORM and SQLite so credentials, pre-keys, sessions, and identities
// survive a process restart.
package sqlstore

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/waconnect/waconnect-go/internal/jid"
	"github.com/waconnect/waconnect-go/internal/signal"
	"github.com/waconnect/waconnect-go/internal/store"
)

// credentialRow is the single-row table holding the account's
// Credentials; id is always 1.
type credentialRow struct {
	ID uint `gorm:"primarykey"`

	NoiseKeyPriv []byte
	NoiseKeyPub  []byte

	PairingEphPriv []byte
	PairingEphPub  []byte

	SignedIdentityPriv []byte
	SignedIdentityPub  []byte

	SignedPreKeyID  uint32
	SignedPreKeyPriv []byte
	SignedPreKeyPub  []byte
	SignedPreKeySig  []byte

	RegistrationID uint32
	ADVSecretKey   []byte

	MeJID  string
	MeName string
	MeLID  string

	Account []byte

	NextPreKeyID            uint32
	FirstUnuploadedPreKeyID uint32
	Registered              bool

	RoutingInfo []byte
}

type signalIdentityRow struct {
	PeerJID     string `gorm:"primarykey"`
	IdentityKey []byte
}

type preKeyRow struct {
	ID   uint32 `gorm:"primarykey"`
	Priv []byte
	Pub  []byte
}

type sessionRow struct {
	Address string `gorm:"primarykey"`
	Data    []byte
}

type peerIdentityRow struct {
	Address string `gorm:"primarykey"`
	Key     []byte
}

type senderKeyRow struct {
	Name   string `gorm:"primarykey"`
	Record []byte
}

type processedRow struct {
	Key       string `gorm:"primarykey"`
	CreatedAt time.Time
}

const processedCacheBound = 2000

// Store is a GORM/SQLite-backed store.Store.
type Store struct {
	db *gorm.DB
}

// Open parses dsn ("sqlite:///path/to/db.sqlite") and migrates the
// schema, mirroring the DSN-prefix convention used elsewhere in the
// example pack for picking a GORM driver.
func Open(dsn string) (*Store, error) {
	if !strings.HasPrefix(dsn, "sqlite://") {
		return nil, fmt.Errorf("sqlstore: unsupported DSN %q (only sqlite:// is supported)", dsn)
	}
	path := strings.TrimPrefix(dsn, "sqlite://")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if err := db.AutoMigrate(
		&credentialRow{}, &signalIdentityRow{}, &preKeyRow{},
		&sessionRow{}, &peerIdentityRow{}, &senderKeyRow{}, &processedRow{},
	); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// mustParseJID parses a JID stored in the credentials row; a stored
// value is always one this process wrote via JID.String, so a parse
// failure indicates on-disk corruption worth surfacing loudly rather
// than silently producing a zero-value JID.
func mustParseJID(s string) jid.JID {
	j, err := jid.Parse(s)
	if err != nil {
		panic(fmt.Sprintf("sqlstore: corrupt stored JID %q: %v", s, err))
	}
	return j
}

func toKeyPair(priv, pub []byte) signal.KeyPair {
	var kp signal.KeyPair
	copy(kp.Private[:], priv)
	copy(kp.Public[:], pub)
	return kp
}

func (s *Store) LoadCredentials() (*store.Credentials, error) {
	var row credentialRow
	if err := s.db.First(&row, 1).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	var identRows []signalIdentityRow
	if err := s.db.Find(&identRows).Error; err != nil {
		return nil, err
	}
	identities := make(map[string][32]byte, len(identRows))
	for _, ir := range identRows {
		var key [32]byte
		copy(key[:], ir.IdentityKey)
		identities[ir.PeerJID] = key
	}

	c := &store.Credentials{
		NoiseKey:            toKeyPair(row.NoiseKeyPriv, row.NoiseKeyPub),
		PairingEphemeralKey: toKeyPair(row.PairingEphPriv, row.PairingEphPub),
		SignedIdentityKey:   toKeyPair(row.SignedIdentityPriv, row.SignedIdentityPub),
		SignedPreKey: store.SignedPreKey{
			ID:        row.SignedPreKeyID,
			KeyPair:   toKeyPair(row.SignedPreKeyPriv, row.SignedPreKeyPub),
			Signature: row.SignedPreKeySig,
		},
		RegistrationID:          row.RegistrationID,
		Account:                 row.Account,
		SignalIdentities:        identities,
		NextPreKeyID:            row.NextPreKeyID,
		FirstUnuploadedPreKeyID: row.FirstUnuploadedPreKeyID,
		Registered:              row.Registered,
		RoutingInfo:             row.RoutingInfo,
	}
	copy(c.ADVSecretKey[:], row.ADVSecretKey)
	if row.MeJID != "" {
		c.Me = &store.MeInfo{JID: mustParseJID(row.MeJID), Name: row.MeName, LID: row.MeLID}
	}
	return c, nil
}

func (s *Store) SaveCredentials(c *store.Credentials) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		row := credentialRow{
			ID:                      1,
			NoiseKeyPriv:            c.NoiseKey.Private[:],
			NoiseKeyPub:             c.NoiseKey.Public[:],
			PairingEphPriv:          c.PairingEphemeralKey.Private[:],
			PairingEphPub:           c.PairingEphemeralKey.Public[:],
			SignedIdentityPriv:      c.SignedIdentityKey.Private[:],
			SignedIdentityPub:       c.SignedIdentityKey.Public[:],
			SignedPreKeyID:          c.SignedPreKey.ID,
			SignedPreKeyPriv:        c.SignedPreKey.KeyPair.Private[:],
			SignedPreKeyPub:         c.SignedPreKey.KeyPair.Public[:],
			SignedPreKeySig:         c.SignedPreKey.Signature,
			RegistrationID:          c.RegistrationID,
			ADVSecretKey:            c.ADVSecretKey[:],
			Account:                 c.Account,
			NextPreKeyID:            c.NextPreKeyID,
			FirstUnuploadedPreKeyID: c.FirstUnuploadedPreKeyID,
			Registered:              c.Registered,
			RoutingInfo:             c.RoutingInfo,
		}
		if c.Me != nil {
			row.MeJID = c.Me.JID.String()
			row.MeName = c.Me.Name
			row.MeLID = c.Me.LID
		}
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		for peerJID, key := range c.SignalIdentities {
			ir := signalIdentityRow{PeerJID: peerJID, IdentityKey: key[:]}
			if err := tx.Save(&ir).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) LoadIdentityKeyPair() (signal.KeyPair, error) {
	c, err := s.LoadCredentials()
	if err != nil || c == nil {
		return signal.KeyPair{}, err
	}
	return c.SignedIdentityKey, nil
}

func (s *Store) LoadRegistrationID() (uint32, error) {
	c, err := s.LoadCredentials()
	if err != nil || c == nil {
		return 0, err
	}
	return c.RegistrationID, nil
}

func (s *Store) LoadSession(addr signal.Address) (*signal.SessionRecord, bool, error) {
	var row sessionRow
	err := s.db.First(&row, "address = ?", addr.String()).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec, err := signal.DecodeSessionRecord(row.Data)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *Store) StoreSession(addr signal.Address, record *signal.SessionRecord) error {
	data, err := signal.EncodeSessionRecord(record)
	if err != nil {
		return err
	}
	row := sessionRow{Address: addr.String(), Data: data}
	return s.db.Save(&row).Error
}

func (s *Store) LoadSignedPreKey(id uint32) (signal.PreKey, bool, error) {
	c, err := s.LoadCredentials()
	if err != nil || c == nil || c.SignedPreKey.ID != id {
		return signal.PreKey{}, false, err
	}
	return signal.PreKey{ID: c.SignedPreKey.ID, KeyPair: c.SignedPreKey.KeyPair, Signature: c.SignedPreKey.Signature}, true, nil
}

func (s *Store) LoadPreKey(id uint32) (signal.PreKey, bool, error) {
	var row preKeyRow
	err := s.db.First(&row, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return signal.PreKey{}, false, nil
	}
	if err != nil {
		return signal.PreKey{}, false, err
	}
	return signal.PreKey{ID: row.ID, KeyPair: toKeyPair(row.Priv, row.Pub)}, true, nil
}

func (s *Store) DeletePreKey(id uint32) error {
	return s.db.Delete(&preKeyRow{}, "id = ?", id).Error
}

func (s *Store) LoadPeerIdentity(addr signal.Address) ([32]byte, bool, error) {
	var row peerIdentityRow
	err := s.db.First(&row, "address = ?", addr.String()).Error
	if err == gorm.ErrRecordNotFound {
		return [32]byte{}, false, nil
	}
	if err != nil {
		return [32]byte{}, false, err
	}
	var key [32]byte
	copy(key[:], row.Key)
	return key, true, nil
}

func (s *Store) SavePeerIdentity(addr signal.Address, key [32]byte) error {
	row := peerIdentityRow{Address: addr.String(), Key: key[:]}
	return s.db.Save(&row).Error
}

func (s *Store) PutPreKey(id uint32, kp signal.KeyPair) error {
	row := preKeyRow{ID: id, Priv: kp.Private[:], Pub: kp.Public[:]}
	return s.db.Save(&row).Error
}

func (s *Store) NextPreKeyBatch(count int) ([]signal.PreKey, error) {
	var out []signal.PreKey
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row credentialRow
		if err := tx.First(&row, 1).Error; err != nil {
			return err
		}
		for i := 0; i < count; i++ {
			kp, err := signal.GenerateKeyPair()
			if err != nil {
				return err
			}
			id := row.NextPreKeyID
			row.NextPreKeyID++
			if err := tx.Save(&preKeyRow{ID: id, Priv: kp.Private[:], Pub: kp.Public[:]}).Error; err != nil {
				return err
			}
			out = append(out, signal.PreKey{ID: id, KeyPair: kp})
		}
		return tx.Save(&row).Error
	})
	return out, err
}

func (s *Store) GetAllSessionsForUser(user string) (map[signal.Address]*signal.SessionRecord, error) {
	var rows []sessionRow
	if err := s.db.Where("address LIKE ?", user+".%").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[signal.Address]*signal.SessionRecord, len(rows))
	for _, row := range rows {
		addr, ok := parseAddress(row.Address)
		if !ok {
			continue
		}
		rec, err := signal.DecodeSessionRecord(row.Data)
		if err != nil {
			return nil, err
		}
		out[addr] = rec
	}
	return out, nil
}

// parseAddress is the inverse of signal.Address.String ("user.device").
func parseAddress(s string) (signal.Address, bool) {
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return signal.Address{}, false
	}
	var device uint16
	if _, err := fmt.Sscanf(s[idx+1:], "%d", &device); err != nil {
		return signal.Address{}, false
	}
	return signal.Address{User: s[:idx], Device: device}, true
}

func (s *Store) PutSenderKey(name string, record []byte) error {
	return s.db.Save(&senderKeyRow{Name: name, Record: record}).Error
}

func (s *Store) GetSenderKey(name string) ([]byte, bool, error) {
	var row senderKeyRow
	err := s.db.First(&row, "name = ?", name).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row.Record, true, nil
}

// IsProcessed checks and records (chat, id) in the processed_messages
// table, evicting the oldest row once the bound is exceeded.
func (s *Store) IsProcessed(chat, id string) (bool, error) {
	key := chat + "\x00" + id
	var existing processedRow
	err := s.db.First(&existing, "\"key\" = ?", key).Error
	if err == nil {
		return true, nil
	}
	if err != gorm.ErrRecordNotFound {
		return false, err
	}
	return false, s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&processedRow{Key: key, CreatedAt: time.Now()}).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&processedRow{}).Count(&count).Error; err != nil {
			return err
		}
		if count > processedCacheBound {
			var oldest processedRow
			if err := tx.Order("created_at asc").First(&oldest).Error; err != nil {
				return err
			}
			if err := tx.Delete(&oldest).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
