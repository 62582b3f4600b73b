package blte

// Mode identifies a chunk's payload encoding, the single byte that begins
// every chunk on the wire (spec.md §3/§6).
type Mode byte

const (
	ModeNone      Mode = 'N'
	ModeZLib      Mode = 'Z'
	ModeLZ4       Mode = '4'
	ModeFrame     Mode = 'F' // deprecated; decoding and encoding both reject it.
	ModeEncrypted Mode = 'E'
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeZLib:
		return "zlib"
	case ModeLZ4:
		return "lz4"
	case ModeFrame:
		return "frame"
	case ModeEncrypted:
		return "encrypted"
	default:
		return "unknown"
	}
}

func parseMode(b byte) (Mode, bool) {
	switch Mode(b) {
	case ModeNone, ModeZLib, ModeLZ4, ModeFrame, ModeEncrypted:
		return Mode(b), true
	default:
		return 0, false
	}
}
