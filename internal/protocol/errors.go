package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Station routing/state.
	ErrStationBusy = "E_STATION_BUSY"

	// Command layer.
	ErrBadRequest      = "E_BAD_REQUEST"
	ErrUnknownContract = "E_UNKNOWN_CONTRACT"
	ErrUnknownVessel   = "E_UNKNOWN_VESSEL"
	ErrConflict        = "E_CONFLICT"
	ErrNoCandidates    = "E_NO_CANDIDATES"
	ErrRequirements    = "E_REQUIREMENTS"
	ErrTooBoring       = "E_TOO_BORING"
	ErrNotFinished     = "E_NOT_FINISHED"
	ErrFinalized       = "E_FINALIZED"
	ErrInternal        = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrStationBusy:     {},
	ErrBadRequest:      {},
	ErrUnknownContract: {},
	ErrUnknownVessel:   {},
	ErrConflict:        {},
	ErrNoCandidates:    {},
	ErrRequirements:    {},
	ErrTooBoring:       {},
	ErrNotFinished:     {},
	ErrFinalized:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
