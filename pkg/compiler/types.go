package compiler

import (
	"fmt"
	"strings"

	"ice9c/pkg/tm"
)

// Kind is the shape of a Type.
type Kind int

const (
	KindNil Kind = iota
	KindInt
	KindBool
	KindStr
	KindArray
	KindProc
)

// Type describes an ice9 type. Scalars are the shared IntType, BoolType
// and StrType values, so scalar types can be compared with ==.
type Type struct {
	Kind   Kind
	Name   string
	Elem   *Type // array element
	Len    int   // array length
	Params []*Type
	Result *Type // nil for procedures without a result
}

var (
	NilType  = &Type{Kind: KindNil, Name: "nil"}
	IntType  = &Type{Kind: KindInt, Name: "int"}
	BoolType = &Type{Kind: KindBool, Name: "bool"}
	StrType  = &Type{Kind: KindStr, Name: "str"}
)

// ArrayOf returns the type elem[n].
func ArrayOf(elem *Type, n int) *Type {
	return &Type{Kind: KindArray, Elem: elem, Len: n}
}

// Size is the number of data words a value of t occupies.
func (t *Type) Size() int {
	if t.Kind == KindArray {
		return t.Len * t.Elem.Size()
	}
	return 1
}

// Dims lists the array dimensions of t, outermost first.
func (t *Type) Dims() []int {
	var dims []int
	for a := t; a.Kind == KindArray; a = a.Elem {
		dims = append(dims, a.Len)
	}
	return dims
}

// Base strips all array dimensions from t.
func (t *Type) Base() *Type {
	for t.Kind == KindArray {
		t = t.Elem
	}
	return t
}

// Equal reports structural equality.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindArray:
		return t.Len == o.Len && t.Elem.Equal(o.Elem)
	case KindProc:
		if len(t.Params) != len(o.Params) || !t.Result.Equal(o.Result) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i]) {
				return false
			}
		}
		return true
	}
	return true
}

func (t *Type) String() string {
	switch t.Kind {
	case KindArray:
		var sb strings.Builder
		sb.WriteString(t.Base().String())
		for _, d := range t.Dims() {
			fmt.Fprintf(&sb, "[%d]", d)
		}
		return sb.String()
	case KindProc:
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = p.String()
		}
		s := "proc(" + strings.Join(params, ", ") + ")"
		if t.Result != nil {
			s += ": " + t.Result.String()
		}
		return s
	}
	return t.Name
}

// StorageClass says where a variable lives.
type StorageClass int

const (
	StorageGlobal    StorageClass = iota // absolute data address
	StorageLocal                         // FP-relative, negative offsets
	StorageParam                         // FP-relative, positive offsets
	StorageInduction                     // counted loop variable held in AC3
)

func (c StorageClass) String() string {
	switch c {
	case StorageGlobal:
		return "global"
	case StorageLocal:
		return "local"
	case StorageParam:
		return "param"
	case StorageInduction:
		return "induction"
	}
	return fmt.Sprintf("StorageClass(%d)", int(c))
}

// Storage is a resolved variable location.
type Storage struct {
	Class  StorageClass
	Offset int
}

// Base is the register the offset is relative to.
func (s Storage) Base() int {
	switch s.Class {
	case StorageLocal, StorageParam:
		return tm.FP
	case StorageInduction:
		return tm.AC3
	}
	return tm.ZERO
}

func (s Storage) String() string {
	if s.Class == StorageInduction {
		return "AC3"
	}
	return fmt.Sprintf("%d(%s)", s.Offset, tm.RegName(s.Base()))
}

// Symbol is one declared variable.
type Symbol struct {
	Name     string
	Type     *Type
	Storage  Storage
	ReadOnly bool // counted loop variables
}
