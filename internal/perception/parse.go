package perception

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SeeMarker opens the vision perceptor block.
const SeeMarker = "(See"

const polToken = "pol"

var (
	errUnknownObject = errors.New("perception: unknown object tag")
	errMalformed     = errors.New("perception: malformed object")
)

// Extract returns the first balanced (See ...) block of raw.
func Extract(raw string) (string, bool) {
	start := strings.Index(raw, SeeMarker)
	if start < 0 {
		return "", false
	}
	end, ok := closingIndex(raw, start)
	if !ok {
		return "", false
	}
	return raw[start : end+1], true
}

// closingIndex returns the index where the paren opened at start closes.
func closingIndex(s string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Classify splits a (See ...) block into entities, dropping unknown and
// malformed objects.
func Classify(block string) []Entity {
	entities, _ := ClassifyCounted(block)
	return entities
}

// ClassifyCounted is Classify that also reports how many objects failed to parse.
func ClassifyCounted(block string) ([]Entity, int) {
	body := strings.TrimPrefix(block, SeeMarker)
	body = strings.TrimSuffix(body, ")")

	entities := make([]Entity, 0, 16)
	dropped := 0
	depth, start := 0, 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			if depth == 0 {
				continue
			}
			depth--
			if depth > 0 {
				continue
			}
			e, err := parseObject(body[start : i+1])
			switch {
			case err == nil:
				entities = append(entities, e)
			case errors.Is(err, errUnknownObject):
			default:
				dropped++
			}
		}
	}
	return entities, dropped
}

// Parse extracts and classifies the perception block of one server message.
func Parse(raw string) Frame {
	block, ok := Extract(raw)
	if !ok {
		return Frame{Entities: []Entity{}}
	}
	entities, dropped := ClassifyCounted(block)
	return Frame{
		Visible:  true,
		Block:    block,
		Entities: entities,
		Dropped:  dropped,
	}
}

func parseObject(obj string) (Entity, error) {
	fields := strings.Fields(stripParens(obj))
	if len(fields) == 0 {
		return Entity{}, fmt.Errorf("%w: empty", errMalformed)
	}
	label := fields[0]
	kind := kindForTag(label[0])
	if kind == KindUnknown {
		return Entity{}, errUnknownObject
	}

	if kind == KindFieldLine {
		return parseLine(label, fields[1:])
	}

	idx := -1
	for i, f := range fields {
		if f == polToken {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Entity{}, fmt.Errorf("%w: %s missing %s", errMalformed, label, polToken)
	}
	pos, err := parseTriple(fields[idx+1:])
	if err != nil {
		return Entity{}, fmt.Errorf("%w: %s: %v", errMalformed, label, err)
	}
	return Entity{Kind: kind, Label: label, Pos: pos}, nil
}

func parseLine(label string, fields []string) (Entity, error) {
	nums := make([]string, 0, 6)
	pols := 0
	for _, f := range fields {
		if f == polToken {
			pols++
			continue
		}
		nums = append(nums, f)
	}
	if pols != 2 || len(nums) != 6 {
		return Entity{}, fmt.Errorf("%w: %s pol=%d values=%d", errMalformed, label, pols, len(nums))
	}
	a, err := parseTriple(nums[:3])
	if err != nil {
		return Entity{}, fmt.Errorf("%w: %s: %v", errMalformed, label, err)
	}
	b, err := parseTriple(nums[3:])
	if err != nil {
		return Entity{}, fmt.Errorf("%w: %s: %v", errMalformed, label, err)
	}
	return Entity{Kind: KindFieldLine, Label: label, Pos: a, End: b}, nil
}

func parseTriple(fields []string) (Polar, error) {
	if len(fields) < 3 {
		return Polar{}, fmt.Errorf("want 3 values, got %d", len(fields))
	}
	var v [3]float64
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return Polar{}, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Polar{}, fmt.Errorf("non-finite value %q", fields[i])
		}
		v[i] = f
	}
	return Polar{Distance: v[0], Horizontal: v[1], Vertical: v[2]}, nil
}

func stripParens(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '(' || r == ')' {
			return ' '
		}
		return r
	}, s)
}
