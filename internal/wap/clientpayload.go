package wap

// UserAgent identifies this client to the server during login/registration.
type UserAgent struct {
	Platform        string // field 1
	AppVersion      string // field 2 ("major.minor.patch")
	OSVersion       string // field 3
	Manufacturer    string // field 4
	DeviceModel     string // field 5
	LocaleLanguage  string // field 6
}

// DevicePairingData carries the ADV identity material exchanged during
// first-time pairing.
type DevicePairingData struct {
	ERegID           []byte // field 1
	EKeyType         []byte // field 2
	EIdent           []byte // field 3, signed device identity bytes
	ESkeyID          []byte // field 4
	ESkeyVal         []byte // field 5
	ESkeySig         []byte // field 6
	BuildHash        []byte // field 7
	DeviceProps      []byte // field 8
}

// ClientPayload is the outer login/registration message sent inside a
// ClientFinish frame.
type ClientPayload struct {
	Username       uint64
	PushName       string
	UserAgent      *UserAgent
	Pairing        *DevicePairingData
	Passive        bool
	RegData        []byte // serialized registration data, present on registration only
	Device         uint32 // login only
	Pull           bool   // login only: request queued offline messages
}

func EncodeUserAgent(u *UserAgent) []byte {
	var out []byte
	out = append(out, EncodeBytesField(1, []byte(u.Platform))...)
	out = append(out, EncodeBytesField(2, []byte(u.AppVersion))...)
	out = append(out, EncodeBytesField(3, []byte(u.OSVersion))...)
	out = append(out, EncodeBytesField(4, []byte(u.Manufacturer))...)
	out = append(out, EncodeBytesField(5, []byte(u.DeviceModel))...)
	out = append(out, EncodeBytesField(6, []byte(u.LocaleLanguage))...)
	return out
}

func decodeUserAgent(data []byte) *UserAgent {
	get := func(n int) string {
		b, _ := FindField(data, n)
		return string(b)
	}
	return &UserAgent{
		Platform:       get(1),
		AppVersion:     get(2),
		OSVersion:      get(3),
		Manufacturer:   get(4),
		DeviceModel:    get(5),
		LocaleLanguage: get(6),
	}
}

func EncodeDevicePairingData(p *DevicePairingData) []byte {
	var out []byte
	out = append(out, EncodeBytesField(1, p.ERegID)...)
	out = append(out, EncodeBytesField(2, p.EKeyType)...)
	out = append(out, EncodeBytesField(3, p.EIdent)...)
	out = append(out, EncodeBytesField(4, p.ESkeyID)...)
	out = append(out, EncodeBytesField(5, p.ESkeyVal)...)
	out = append(out, EncodeBytesField(6, p.ESkeySig)...)
	out = append(out, EncodeBytesField(7, p.BuildHash)...)
	out = append(out, EncodeBytesField(8, p.DeviceProps)...)
	return out
}

func decodeDevicePairingData(data []byte) *DevicePairingData {
	get := func(n int) []byte {
		b, _ := FindField(data, n)
		return b
	}
	return &DevicePairingData{
		ERegID:      get(1),
		EKeyType:    get(2),
		EIdent:      get(3),
		ESkeyID:     get(4),
		ESkeyVal:    get(5),
		ESkeySig:    get(6),
		BuildHash:   get(7),
		DeviceProps: get(8),
	}
}

func EncodeClientPayload(p *ClientPayload) []byte {
	var out []byte
	out = append(out, EncodeVarintField(1, p.Username)...)
	out = append(out, EncodeBytesField(2, []byte(p.PushName))...)
	if p.UserAgent != nil {
		out = append(out, EncodeBytesField(3, EncodeUserAgent(p.UserAgent))...)
	}
	if p.Pairing != nil {
		out = append(out, EncodeBytesField(4, EncodeDevicePairingData(p.Pairing))...)
	}
	if p.Passive {
		out = append(out, EncodeVarintField(5, 1)...)
	}
	out = append(out, EncodeBytesField(6, p.RegData)...)
	if p.Device != 0 {
		out = append(out, EncodeVarintField(7, uint64(p.Device))...)
	}
	if p.Pull {
		out = append(out, EncodeVarintField(8, 1)...)
	}
	return out
}

func DecodeClientPayload(data []byte) (*ClientPayload, error) {
	p := &ClientPayload{}
	if v, ok := FindVarintField(data, 1); ok {
		p.Username = v
	}
	if b, ok := FindField(data, 2); ok {
		p.PushName = string(b)
	}
	if b, ok := FindField(data, 3); ok {
		p.UserAgent = decodeUserAgent(b)
	}
	if b, ok := FindField(data, 4); ok {
		p.Pairing = decodeDevicePairingData(b)
	}
	if v, ok := FindVarintField(data, 5); ok {
		p.Passive = v != 0
	}
	p.RegData, _ = FindField(data, 6)
	if v, ok := FindVarintField(data, 7); ok {
		p.Device = uint32(v)
	}
	if v, ok := FindVarintField(data, 8); ok {
		p.Pull = v != 0
	}
	return p, nil
}
