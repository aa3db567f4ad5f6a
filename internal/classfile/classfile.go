// Package classfile defines the class-file services the debug session
// consumes: line-number resolution, field lists and descriptor decoding.
// Parsing class files themselves is the caller's concern; the session only
// needs the interfaces below.
package classfile

// Access flag bits from the class-file format.
const (
	// AccStatic marks a static field.
	AccStatic = 0x0008
)

// FieldInfo describes one field of a class.
type FieldInfo struct {
	// Name is the field name.
	Name string

	// Descriptor is the field's type descriptor.
	Descriptor string

	// AccessFlags are the class-file access flags.
	AccessFlags uint16
}

// IsStatic reports whether the field is static.
func (f FieldInfo) IsStatic() bool {
	return f.AccessFlags&AccStatic != 0
}

// LocalVar is one entry of a method's local-variable table.
type LocalVar struct {
	// Name is the variable name.
	Name string

	// Descriptor is the variable's type descriptor.
	Descriptor string

	// Index is the local slot index.
	Index uint16

	// StartPc is the first pc at which the variable is in scope.
	StartPc uint32

	// Length is the scope length in code bytes.
	Length uint32
}

// InScopeAt reports whether the variable's scope contains pc.
func (v LocalVar) InScopeAt(pc uint32) bool {
	return pc >= v.StartPc && pc < v.StartPc+v.Length
}

// MethodInfo carries the per-method tables the session inspects.
type MethodInfo struct {
	// Name is the method name.
	Name string

	// Descriptor is the method descriptor.
	Descriptor string

	// LocalVariables is the local-variable table, empty when the class was
	// compiled without debug info.
	LocalVariables []LocalVar
}

// LineInfo binds a source line to a code location.
type LineInfo struct {
	// ClassName is the binary class name (slash-separated).
	ClassName string

	// MethodName is the enclosing method name.
	MethodName string

	// Descriptor is the enclosing method descriptor.
	Descriptor string

	// Pc is the bytecode offset of the line's first instruction.
	Pc uint32

	// Line is the source line number.
	Line uint32

	// SourcePath is the on-disk path of the source file.
	SourcePath string

	// CodeLength is the length of the method's code array.
	CodeLength uint32

	// Method is the enclosing method.
	Method *MethodInfo
}

// LocalsAt returns the local-variable entries in scope at pc, or nil when
// the method carries no table or nothing is in scope.
func (li *LineInfo) LocalsAt(pc uint32) []LocalVar {
	if li.Method == nil {
		return nil
	}
	var out []LocalVar
	for _, v := range li.Method.LocalVariables {
		if v.InScopeAt(pc) {
			out = append(out, v)
		}
	}
	return out
}

// Loader is a loaded class.
type Loader interface {
	// ThisClass returns the binary name of the loaded class.
	ThisClass() string

	// IsClassOf reports whether the class is name or descends from it.
	IsClassOf(name string) bool

	// FieldList returns the class's fields, walking superclasses when
	// includeInherited is set.
	FieldList(includeInherited bool) []FieldInfo
}

// ClassLoader resolves classes and line information. Implementations must
// be safe for concurrent use; the session never mutates them.
type ClassLoader interface {
	// Load loads a class by binary name.
	Load(className string) (Loader, error)

	// LineInfoFromLine resolves a (line, source) pair to a code location.
	LineInfoFromLine(line uint32, sourcePath string) (*LineInfo, error)

	// LineInfoFromPc resolves a code location back to line information.
	LineInfoFromPc(pc uint32, className, methodName, descriptor string) (*LineInfo, error)
}
