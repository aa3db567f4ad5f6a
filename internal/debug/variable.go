package debug

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/FlintVN/FlintDebug/internal/classfile"
	"github.com/FlintVN/FlintDebug/internal/wire"
)

// notAvailable is the placeholder shown when one element of a batch fails
// to decode.
const notAvailable = "not available"

// wantU64Bit flags an 8-byte read in READ_LOCAL's frame word.
const wantU64Bit = 0x80000000

// Variable is the front-end shape of a decoded value. A zero
// VariablesReference marks a leaf.
type Variable struct {
	// Name is the display name.
	Name string

	// Value is the display value.
	Value string

	// VariablesReference is the handle to expand children, zero for
	// leaves.
	VariablesReference uint32
}

// registerRef adds an expandable value to the session's reference table.
// Strings and primitives are leaves and are never registered.
func (s *Session) registerRef(vi *ValueInfo) {
	if vi.Reference == 0 {
		return
	}
	if vi.Value.Kind != KindObject && vi.Value.Kind != KindArray {
		return
	}
	s.mu.Lock()
	s.varRefs[vi.Reference] = vi
	s.mu.Unlock()
}

// lookupRef finds a previously registered value.
func (s *Session) lookupRef(reference uint32) (*ValueInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vi, ok := s.varRefs[reference]
	return vi, ok
}

// ReadLocalVariables decodes the in-scope locals of a frame. The variable
// reference table is cleared first: references handed out earlier become
// invalid. Locals that fail to decode appear as "not available" rather
// than failing the batch.
func (s *Session) ReadLocalVariables(frameID uint32) ([]Variable, error) {
	s.mu.Lock()
	s.varRefs = make(map[uint32]*ValueInfo)
	s.mu.Unlock()

	frame, err := s.frameByID(frameID)
	if err != nil {
		return nil, err
	}

	vars := make([]Variable, 0, len(frame.LocalVariables))
	for _, lv := range frame.LocalVariables {
		vi, err := s.readLocal(frameID, lv)
		if err != nil {
			s.log.Debug("local not available",
				zap.String("name", lv.Name), zap.Error(err))
			vars = append(vars, Variable{Name: lv.Name, Value: notAvailable})
			continue
		}
		s.registerRef(vi)
		vars = append(vars, vi.variable())
	}
	return vars, nil
}

// readLocal reads and decodes one local-variable slot.
func (s *Session) readLocal(frameID uint32, lv classfile.LocalVar) (*ValueInfo, error) {
	word := frameID &^ uint32(wantU64Bit)
	if classfile.IsWide(lv.Descriptor) {
		word |= wantU64Bit
	}
	payload := make([]byte, 0, 8)
	payload = wire.AppendUint32(payload, word)
	payload = wire.AppendUint32(payload, uint32(lv.Index))

	resp, err := s.client.SendCommand(wire.CmdReadLocal, payload, 0)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s %q code 0x%02X", ErrCommandFailed, wire.CmdReadLocal, lv.Name, resp.ResponseCode)
	}
	size, raw, typeName, err := parseValueResponse(resp.Data)
	if err != nil {
		return nil, err
	}
	return s.decodeValue(lv.Name, lv.Descriptor, size, raw, typeName)
}

// ReadVariable expands a variable reference handed out by an earlier
// decode. Unknown references and leaves return nil.
func (s *Session) ReadVariable(reference uint32) ([]Variable, error) {
	vi, ok := s.lookupRef(reference)
	if !ok {
		return nil, nil
	}
	switch vi.Value.Kind {
	case KindArray:
		return s.expandArray(vi)
	case KindObject:
		return s.expandObject(vi)
	default:
		return nil, nil
	}
}

// expandArray reads every element of an array value.
func (s *Session) expandArray(vi *ValueInfo) ([]Variable, error) {
	elemDesc := vi.Type[1:]
	esize := classfile.ElementSize(elemDesc)
	count := vi.Size / esize

	data, err := s.readArrayRaw(vi.Reference, count, 0)
	if err != nil {
		return nil, err
	}
	actual := uint32(len(data)) / esize
	if actual < count {
		count = actual
	}

	vars := make([]Variable, 0, count)
	for i := uint32(0); i < count; i++ {
		name := "[" + strconv.FormatUint(uint64(i), 10) + "]"
		elem := data[i*esize : (i+1)*esize]
		v, err := s.decodeArrayElement(name, elemDesc, elem)
		if err != nil {
			s.log.Debug("array element not available", zap.String("name", name), zap.Error(err))
			vars = append(vars, Variable{Name: name, Value: notAvailable})
			continue
		}
		s.registerRef(v)
		vars = append(vars, v.variable())
	}
	return vars, nil
}

// decodeArrayElement decodes one packed element. Integer cases of 1 and 2
// bytes widen with sign; 4-byte slots of reference element types resolve
// through the object space.
func (s *Session) decodeArrayElement(name, elemDesc string, elem []byte) (*ValueInfo, error) {
	switch len(elem) {
	case 1:
		if elemDesc == "Z" {
			return &ValueInfo{Name: name, Type: elemDesc, Value: decodePrimitive(classfile.DescBoolean, uint64(elem[0]))}, nil
		}
		return &ValueInfo{Name: name, Type: elemDesc, Value: Value{Kind: KindInt, Int: int64(int8(elem[0]))}}, nil
	case 2:
		raw := wire.Uint16At(elem, 0)
		if elemDesc == "C" {
			return &ValueInfo{Name: name, Type: elemDesc, Value: decodePrimitive(classfile.DescChar, uint64(raw))}, nil
		}
		return &ValueInfo{Name: name, Type: elemDesc, Value: Value{Kind: KindInt, Int: int64(int16(raw))}}, nil
	case 8:
		raw := wire.Uint64At(elem, 0)
		if elemDesc == "D" {
			return &ValueInfo{Name: name, Type: elemDesc, Value: decodePrimitive(classfile.DescDouble, raw)}, nil
		}
		return &ValueInfo{Name: name, Type: elemDesc, Value: Value{Kind: KindLong, Int: int64(raw)}}, nil
	default:
		raw := wire.Uint32At(elem, 0)
		if classfile.IsPrimitive(elemDesc) {
			return &ValueInfo{Name: name, Type: elemDesc, Value: decodePrimitive(elemDesc[0], uint64(raw))}, nil
		}
		if raw == 0 {
			return &ValueInfo{Name: name, Type: elemDesc, Value: Value{Kind: KindNull}}, nil
		}
		return s.decodeReference(name, elemDesc, raw, "")
	}
}

// expandObject reads every non-static field of an object value, inherited
// fields included. Fields that fail to read become "not available".
func (s *Session) expandObject(vi *ValueInfo) ([]Variable, error) {
	className := classfile.ObjectClassName(vi.Type)
	ld, err := s.loader.Load(className)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", className, err)
	}

	var vars []Variable
	for _, field := range ld.FieldList(true) {
		if field.IsStatic() {
			continue
		}
		fieldVi, err := s.readField(vi.Reference, field)
		if err != nil {
			s.log.Debug("field not available", zap.String("name", field.Name), zap.Error(err))
			vars = append(vars, Variable{Name: field.Name, Value: notAvailable})
			continue
		}
		s.registerRef(fieldVi)
		vars = append(vars, fieldVi.variable())
	}
	return vars, nil
}

// readField reads and decodes one instance field.
func (s *Session) readField(ref uint32, field classfile.FieldInfo) (*ValueInfo, error) {
	size, raw, typeName, err := s.readFieldRaw(ref, field.Name)
	if err != nil {
		return nil, err
	}
	return s.decodeValue(field.Name, field.Descriptor, size, raw, typeName)
}
