package session

import (
	"strconv"
	"strings"
)

// SceneModel is the heterogeneous NAO body description used by handshake 1.
const SceneModel = "rsg/agent/nao/nao_hetero.rsg"

// syncMarker asks the server to advance/flush state for the sender.
const syncMarker = "(syn)"

// SyncMarker returns a fresh copy of the sync command.
func SyncMarker() []byte {
	return []byte(syncMarker)
}

func SceneCommand(robotType int) []byte {
	return []byte("(scene " + SceneModel + " " + strconv.Itoa(robotType) + ")")
}

func InitCommand(unum int, teamName string) []byte {
	return []byte("(init (unum " + strconv.Itoa(unum) + ") (teamname " + strings.TrimSpace(teamName) + "))")
}

func BeamCommand(x, y, rotation float64) []byte {
	return []byte("(beam " + formatFloat(x) + " " + formatFloat(y) + " " + formatFloat(rotation) + ")")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ValidatePayload checks that msg is a non-empty printable ASCII
// s-expression with balanced parentheses.
func ValidatePayload(msg []byte) error {
	if len(msg) == 0 {
		return ErrInvalidPayload
	}
	depth := 0
	for _, b := range msg {
		switch {
		case b == '(':
			depth++
		case b == ')':
			depth--
			if depth < 0 {
				return ErrInvalidPayload
			}
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
		case b < 0x20 || b > 0x7e:
			return ErrInvalidPayload
		}
	}
	if depth != 0 {
		return ErrInvalidPayload
	}
	return nil
}
