package volume

// EHDRequest is the input to the EHD engine's load operation (spec
// §3 "EHD mount request").
type EHDRequest struct {
	Container  string
	Mountpoint string

	Cipher string
	Hash   string

	Key      []byte
	KeyTrunc int // 0 means "no truncation"
	ReadOnly bool
}

// TruncatedKey returns Key, truncated to KeyTrunc bytes if KeyTrunc is
// set and shorter than len(Key).
func (r *EHDRequest) TruncatedKey() []byte {
	if r.KeyTrunc > 0 && r.KeyTrunc < len(r.Key) {
		return r.Key[:r.KeyTrunc]
	}
	return r.Key
}

// EHDInfo is the output of EHD load and the input to EHD unload (spec
// §3 "EHD mount info"). LowerDevice is always set; CryptoDevice has
// the form "/dev/mapper/" + CryptoName.
type EHDInfo struct {
	Container string

	LowerDevice string // container itself, or an allocated loop device
	LoopDevice  string // "" if the container was already a block device

	CryptoName   string
	CryptoDevice string
}
