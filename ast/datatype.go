package ast

import "fmt"

// DataTypeKind tags the variant held by a DataType value.
type DataTypeKind int

const (
	Void DataTypeKind = iota
	U32
	StringType
	Bool
	Any
	FnType
	SliceType
	NamedReference
	DynamicObject
	Generic
)

// DynamicField is one named field of a DynamicObject type, in declaration
// order.
type DynamicField struct {
	Name string
	Type DataType
}

// DataType is the static type used by the analyser and by parameter/field
// declarations. It is represented as a tagged struct rather than an
// interface so that equality (the basis of assignability, see
// AssignableFrom) is structural and cheap to compute.
type DataType struct {
	Kind   DataTypeKind
	Name   string // NamedReference, Generic
	Elem   *DataType
	Params []DataType // FnType
	Ret    *DataType  // FnType
	Fields []DynamicField
}

// AssignableFrom reports whether a value of type other may be assigned to
// a location of type d. Any is assignable to/from anything; otherwise
// assignability is reflexive equality.
func (d DataType) AssignableFrom(other DataType) bool {
	if d.Kind == Any || other.Kind == Any {
		return true
	}
	return d.equal(other)
}

func (d DataType) equal(other DataType) bool {
	if d.Kind != other.Kind {
		return false
	}
	switch d.Kind {
	case NamedReference, Generic:
		return d.Name == other.Name
	case SliceType:
		return d.Elem.equal(*other.Elem)
	case FnType:
		if len(d.Params) != len(other.Params) {
			return false
		}
		for i := range d.Params {
			if !d.Params[i].equal(other.Params[i]) {
				return false
			}
		}
		return d.Ret.equal(*other.Ret)
	case DynamicObject:
		if len(d.Fields) != len(other.Fields) {
			return false
		}
		for i := range d.Fields {
			if d.Fields[i].Name != other.Fields[i].Name || !d.Fields[i].Type.equal(other.Fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (d DataType) String() string {
	switch d.Kind {
	case Void:
		return "void"
	case U32:
		return "u32"
	case StringType:
		return "string"
	case Bool:
		return "bool"
	case Any:
		return "any"
	case NamedReference:
		return d.Name
	case Generic:
		return "$" + d.Name
	case SliceType:
		return fmt.Sprintf("%s[]", d.Elem)
	case FnType:
		return fmt.Sprintf("fn(%v) -> %s", d.Params, d.Ret)
	case DynamicObject:
		return fmt.Sprintf("type{%v}", d.Fields)
	default:
		return "?"
	}
}
