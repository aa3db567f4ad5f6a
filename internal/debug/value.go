package debug

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/FlintVN/FlintDebug/internal/classfile"
	"github.com/FlintVN/FlintDebug/internal/wire"
)

// Well-known runtime classes checked during string materialization.
const (
	classString        = "java/lang/String"
	classStringBuilder = "java/lang/AbstractStringBuilder"
)

// ValueKind discriminates the decoded-value variant.
type ValueKind int

const (
	// KindNull is a null reference.
	KindNull ValueKind = iota
	// KindBool is a boolean.
	KindBool
	// KindInt is a 32-bit integer (int, short, byte).
	KindInt
	// KindLong is a 64-bit integer.
	KindLong
	// KindFloat is a 32-bit float.
	KindFloat
	// KindDouble is a 64-bit float.
	KindDouble
	// KindChar is a UTF-16 code unit.
	KindChar
	// KindString is a materialized string or string-builder value.
	KindString
	// KindObject is a non-string object reference.
	KindObject
	// KindArray is an array reference.
	KindArray
)

// Value is a decoded target value. It carries the numeric raw alongside
// the variant so displays and round-trips need no re-decoding.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Str   string
}

// Display renders the value for the front end.
func (v Value) Display() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.Int != 0 {
			return "true"
		}
		return "false"
	case KindInt, KindLong:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 32)
	case KindDouble:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindChar:
		return "'" + string(rune(uint16(v.Int))) + "'"
	case KindString:
		return quoteJavaString(v.Str)
	case KindObject, KindArray:
		return v.Str
	default:
		return "?"
	}
}

// ValueInfo is a decoded value bound to its name and, for expandable
// values, its variable reference.
type ValueInfo struct {
	// Name is the local, field or element name.
	Name string

	// Type is the runtime type name when known, else the declared
	// descriptor.
	Type string

	// Value is the decoded value.
	Value Value

	// Size is the value's size in bytes (object size for references).
	Size uint32

	// Reference is the target-side handle for expandable values and zero
	// for leaves. Strings are leaves.
	Reference uint32
}

// variable converts the ValueInfo to the front-end shape.
func (vi *ValueInfo) variable() Variable {
	return Variable{
		Name:               vi.Name,
		Value:              vi.Value.Display(),
		VariablesReference: vi.Reference,
	}
}

// decodePrimitive interprets raw bits per the descriptor character.
func decodePrimitive(desc byte, raw uint64) Value {
	switch desc {
	case classfile.DescFloat:
		return Value{Kind: KindFloat, Float: float64(math.Float32frombits(uint32(raw)))}
	case classfile.DescDouble:
		return Value{Kind: KindDouble, Float: math.Float64frombits(raw)}
	case classfile.DescChar:
		return Value{Kind: KindChar, Int: int64(uint16(raw))}
	case classfile.DescBoolean:
		v := int64(0)
		if raw != 0 {
			v = 1
		}
		return Value{Kind: KindBool, Int: v}
	case classfile.DescLong:
		return Value{Kind: KindLong, Int: int64(raw)}
	default:
		return Value{Kind: KindInt, Int: int64(int32(uint32(raw)))}
	}
}

// parseValueResponse splits a READ_LOCAL/READ_FIELD response into its
// size, raw value and optional trailing type name.
func parseValueResponse(data []byte) (size uint32, raw uint64, typeName string, err error) {
	if len(data) < 8 {
		return 0, 0, "", fmt.Errorf("value response: short (%d bytes)", len(data))
	}
	size = wire.Uint32At(data, 0)
	off := 8
	if size == 8 {
		if len(data) < 12 {
			return 0, 0, "", fmt.Errorf("value response: 8-byte value truncated")
		}
		raw = uint64(wire.Int64From(wire.Uint32At(data, 4), wire.Uint32At(data, 8)))
		off = 12
	} else {
		raw = uint64(wire.Uint32At(data, 4))
	}
	if len(data) >= off+4 {
		n := int(wire.Uint16At(data, off))
		if len(data) >= off+4+n {
			typeName = string(data[off+4 : off+4+n])
		}
	}
	return size, raw, typeName, nil
}

// decodeValue builds a ValueInfo from a parsed READ_LOCAL/READ_FIELD
// response. For nonzero references the object's size and runtime type are
// read back and string-like objects are materialized in place.
func (s *Session) decodeValue(name, desc string, size uint32, raw uint64, typeName string) (*ValueInfo, error) {
	if classfile.IsPrimitive(desc) {
		return &ValueInfo{
			Name:  name,
			Type:  desc,
			Value: decodePrimitive(desc[0], raw),
			Size:  size,
		}, nil
	}

	ref := uint32(raw)
	if ref == 0 {
		return &ValueInfo{Name: name, Type: desc, Value: Value{Kind: KindNull}}, nil
	}
	return s.decodeReference(name, desc, ref, typeName)
}

// decodeReference resolves a nonzero reference: its size and runtime type,
// string materialization, and the display for arrays and plain objects.
func (s *Session) decodeReference(name, declared string, ref uint32, typeName string) (*ValueInfo, error) {
	objSize, runtimeType, err := s.readSizeAndType(ref)
	if err != nil {
		return nil, fmt.Errorf("reference 0x%X: %w", ref, err)
	}
	if runtimeType == "" {
		runtimeType = typeName
	}
	if runtimeType == "" {
		runtimeType = classfile.ObjectClassName(declared)
	}

	if !classfile.IsArray(runtimeType) {
		if str, ok := s.materializeString(ref, classfile.ObjectClassName(runtimeType)); ok {
			return &ValueInfo{
				Name:  name,
				Type:  runtimeType,
				Value: Value{Kind: KindString, Str: str},
				Size:  objSize,
			}, nil
		}
		return &ValueInfo{
			Name:      name,
			Type:      runtimeType,
			Value:     Value{Kind: KindObject, Str: classfile.SimpleName("L" + classfile.ObjectClassName(runtimeType) + ";")},
			Size:      objSize,
			Reference: ref,
		}, nil
	}

	count := uint32(0)
	if esize := classfile.ElementSize(runtimeType[1:]); esize > 0 {
		count = objSize / esize
	}
	display := strings.Replace(classfile.SimpleName(runtimeType), "[]", "["+strconv.FormatUint(uint64(count), 10)+"]", 1)
	return &ValueInfo{
		Name:      name,
		Type:      runtimeType,
		Value:     Value{Kind: KindArray, Str: display},
		Size:      objSize,
		Reference: ref,
	}, nil
}

// readSizeAndType reads an object's size and runtime type name.
func (s *Session) readSizeAndType(ref uint32) (uint32, string, error) {
	resp, err := s.client.SendCommand(wire.CmdReadSizeAndType, wire.AppendUint32(nil, ref), 0)
	if err != nil {
		return 0, "", err
	}
	if !resp.OK() {
		return 0, "", fmt.Errorf("%w: %s code 0x%02X", ErrCommandFailed, wire.CmdReadSizeAndType, resp.ResponseCode)
	}
	data := resp.Data
	if len(data) < 8 {
		return 0, "", fmt.Errorf("size-and-type: short response (%d bytes)", len(data))
	}
	size := wire.Uint32At(data, 0)
	n := int(wire.Uint16At(data, 4))
	if len(data) < 8+n {
		return 0, "", fmt.Errorf("size-and-type: type name truncated")
	}
	return size, string(data[8 : 8+n]), nil
}

// readFieldRaw reads a field and returns the undecoded response parts.
func (s *Session) readFieldRaw(ref uint32, fieldName string) (uint32, uint64, string, error) {
	payload := make([]byte, 0, 4+wire.WireStringSize(fieldName))
	payload = wire.AppendUint32(payload, ref)
	payload = wire.AppendWireString(payload, fieldName)

	resp, err := s.client.SendCommand(wire.CmdReadField, payload, 0)
	if err != nil {
		return 0, 0, "", err
	}
	if !resp.OK() {
		return 0, 0, "", fmt.Errorf("%w: %s %q code 0x%02X", ErrCommandFailed, wire.CmdReadField, fieldName, resp.ResponseCode)
	}
	return parseValueResponse(resp.Data)
}

// readArrayRaw reads count elements from index start of an array object.
func (s *Session) readArrayRaw(ref, count, start uint32) ([]byte, error) {
	payload := make([]byte, 0, 12)
	payload = wire.AppendUint32(payload, count)
	payload = wire.AppendUint32(payload, start)
	payload = wire.AppendUint32(payload, ref)

	resp, err := s.client.SendCommand(wire.CmdReadArray, payload, 0)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s code 0x%02X", ErrCommandFailed, wire.CmdReadArray, resp.ResponseCode)
	}
	return resp.Data, nil
}

// materializeString renders a String or StringBuilder-like object by
// walking its backing fields. Any failed substep makes the object a plain
// reference again, so errors collapse to ok=false.
func (s *Session) materializeString(ref uint32, className string) (string, bool) {
	ld, err := s.loader.Load(className)
	if err != nil {
		return "", false
	}
	isString := ld.IsClassOf(classString)
	isBuilder := ld.IsClassOf(classStringBuilder)
	if !isString && !isBuilder {
		return "", false
	}

	_, coderRaw, _, err := s.readFieldRaw(ref, "coder")
	if err != nil {
		return "", false
	}
	coder := uint32(coderRaw) & 0xFF

	_, valueRaw, _, err := s.readFieldRaw(ref, "value")
	if err != nil {
		return "", false
	}
	backing := uint32(valueRaw)
	if backing == 0 {
		return "", false
	}

	byteLen, _, err := s.readSizeAndType(backing)
	if err != nil {
		return "", false
	}
	if isBuilder && !isString {
		_, countRaw, _, err := s.readFieldRaw(ref, "count")
		if err != nil {
			return "", false
		}
		byteLen = uint32(countRaw) << coder
	}

	if byteLen == 0 {
		return "", true
	}
	raw, err := s.readArrayRaw(backing, byteLen, 0)
	if err != nil || uint32(len(raw)) < byteLen {
		return "", false
	}
	raw = raw[:byteLen]

	if coder == 0 {
		// Latin-1: one byte per character.
		runes := make([]rune, len(raw))
		for i, b := range raw {
			runes[i] = rune(b)
		}
		return string(runes), true
	}

	// UTF-16LE pairs.
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = wire.Uint16At(raw, i*2)
	}
	return string(utf16.Decode(units)), true
}

// quoteJavaString wraps s in double quotes, escaping backslashes and
// quotes. Backslashes go first so the quote escapes survive.
func quoteJavaString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
