package tpi

import (
	"github.com/cockroachdb/errors"

	"github.com/microsoft/pdb-rs-sub001/internal/stream"
)

// BaseClassRecord represents an LF_BCLASS sub-record: a direct, non-virtual
// base class.
type BaseClassRecord struct {
	Access MemberAccess
	Type   TypeIndex
	Offset uint64
}

// VirtualBaseClassRecord represents an LF_VBCLASS/LF_IVBCLASS sub-record: a
// (possibly indirect) virtual base class.
type VirtualBaseClassRecord struct {
	Indirect        bool
	Access          MemberAccess
	BaseType        TypeIndex
	VBPtrType       TypeIndex
	VBPtrOffset     uint64
	VBTableIndex    uint64
}

// EnumerateRecord represents an LF_ENUMERATE sub-record: one enumerator.
type EnumerateRecord struct {
	Access MemberAccess
	Value  uint64
	Name   string
}

// MemberRecord represents an LF_MEMBER sub-record: a non-static data member.
type MemberRecord struct {
	Access MemberAccess
	Type   TypeIndex
	Offset uint64
	Name   string
}

// StaticMemberRecord represents an LF_STMEMBER sub-record: a static data
// member.
type StaticMemberRecord struct {
	Access MemberAccess
	Type   TypeIndex
	Name   string
}

// MethodOverload is one entry of an LF_METHOD sub-record's overload set.
type MethodOverload struct {
	Properties MethodProperties
	Type       TypeIndex
	VBaseOff   uint32 // only meaningful when Properties.Access()/kind indicates an intro-virtual method
}

// MethodRecord represents an LF_METHOD sub-record: an overloaded method
// name plus a reference to its LF_METHODLIST of overloads.
type MethodRecord struct {
	OverloadCount uint16
	MethodList    TypeIndex
	Name          string
}

// OneMethodRecord represents an LF_ONEMETHOD sub-record: a single,
// non-overloaded method.
type OneMethodRecord struct {
	Properties MethodProperties
	Type       TypeIndex
	VBaseOff   uint32 // present only when Properties indicates an introducing virtual method
	Name       string
}

// NestedTypeRecord represents an LF_NESTTYPE/LF_NESTTYPEEX sub-record: a
// nested type definition.
type NestedTypeRecord struct {
	Access MemberAccess // zero for plain LF_NESTTYPE, which carries no access level
	Type   TypeIndex
	Name   string
}

// VFuncTabRecord represents an LF_VFUNCTAB sub-record: the type of the
// class's virtual function table pointer.
type VFuncTabRecord struct {
	Type TypeIndex
}

// VFuncOffRecord represents an LF_VFUNCOFF sub-record.
type VFuncOffRecord struct {
	Type   TypeIndex
	Offset int32
}

// IndexRecord represents an LF_INDEX sub-record: a continuation pointer to
// another LF_FIELDLIST when a class has more members than fit in one
// record.
type IndexRecord struct {
	Type TypeIndex
}

// FriendClassRecord represents an LF_FRIENDCLS sub-record.
type FriendClassRecord struct {
	Type TypeIndex
}

// FriendFunctionRecord represents an LF_FRIENDFCN sub-record.
type FriendFunctionRecord struct {
	Type TypeIndex
	Name string
}

// FieldListRecord is one decoded sub-record of an LF_FIELDLIST. Exactly one
// of the typed fields is non-nil; Unknown carries the kind and raw bytes of
// anything this package does not decode, per the "opaque fallback" recovery
// policy.
type FieldListRecord struct {
	Kind TypeRecordKind

	BaseClass        *BaseClassRecord
	VirtualBaseClass *VirtualBaseClassRecord
	Enumerate        *EnumerateRecord
	Member           *MemberRecord
	StaticMember     *StaticMemberRecord
	Method           *MethodRecord
	OneMethod        *OneMethodRecord
	NestedType       *NestedTypeRecord
	VFuncTab         *VFuncTabRecord
	VFuncOff         *VFuncOffRecord
	Index            *IndexRecord
	FriendClass      *FriendClassRecord
	FriendFunction   *FriendFunctionRecord

	Unknown []byte
}

// ParseFieldListRecord decodes the sub-records packed into an LF_FIELDLIST
// record's data. Each sub-record is individually padded to a 4-byte
// boundary (relative to the start of data) with LF_PAD0..LF_PAD15 filler
// bytes, which this function skips between records.
func ParseFieldListRecord(data []byte) ([]FieldListRecord, error) {
	var out []FieldListRecord
	r := stream.NewReader(data)

	for r.Remaining() > 0 {
		skipPadding(r)
		if r.Remaining() == 0 {
			break
		}

		kind, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		rec, err := parseFieldListSubRecord(TypeRecordKind(kind), r)
		if err != nil {
			return nil, errors.Wrapf(err, "tpi: field list sub-record 0x%04x", kind)
		}
		out = append(out, rec)
	}

	return out, nil
}

func skipPadding(r *stream.Reader) {
	for r.Remaining() > 0 {
		b, err := r.PeekU8()
		if err != nil {
			return
		}
		if TypeRecordKind(b) < LF_PAD0 || TypeRecordKind(b) > LF_PAD15 {
			return
		}
		if err := r.Skip(1); err != nil {
			return
		}
	}
}

func parseFieldListSubRecord(kind TypeRecordKind, r *stream.Reader) (FieldListRecord, error) {
	switch kind {
	case LF_BCLASS:
		props, err := r.ReadU16()
		if err != nil {
			return FieldListRecord{}, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		offset, err := r.ReadNumeric()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, BaseClass: &BaseClassRecord{
			Access: MemberAccess(props & 0x03),
			Type:   TypeIndex(typ),
			Offset: offset,
		}}, nil

	case LF_VBCLASS, LF_IVBCLASS:
		props, err := r.ReadU16()
		if err != nil {
			return FieldListRecord{}, err
		}
		baseType, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		vbPtrType, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		vbPtrOffset, err := r.ReadNumeric()
		if err != nil {
			return FieldListRecord{}, err
		}
		vbIndex, err := r.ReadNumeric()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, VirtualBaseClass: &VirtualBaseClassRecord{
			Indirect:     kind == LF_IVBCLASS,
			Access:       MemberAccess(props & 0x03),
			BaseType:     TypeIndex(baseType),
			VBPtrType:    TypeIndex(vbPtrType),
			VBPtrOffset:  vbPtrOffset,
			VBTableIndex: vbIndex,
		}}, nil

	case LF_ENUMERATE:
		props, err := r.ReadU16()
		if err != nil {
			return FieldListRecord{}, err
		}
		value, err := r.ReadNumeric()
		if err != nil {
			return FieldListRecord{}, err
		}
		name, err := r.ReadCString()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, Enumerate: &EnumerateRecord{
			Access: MemberAccess(props & 0x03),
			Value:  value,
			Name:   name,
		}}, nil

	case LF_MEMBER:
		props, err := r.ReadU16()
		if err != nil {
			return FieldListRecord{}, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		offset, err := r.ReadNumeric()
		if err != nil {
			return FieldListRecord{}, err
		}
		name, err := r.ReadCString()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, Member: &MemberRecord{
			Access: MemberAccess(props & 0x03),
			Type:   TypeIndex(typ),
			Offset: offset,
			Name:   name,
		}}, nil

	case LF_STMEMBER:
		props, err := r.ReadU16()
		if err != nil {
			return FieldListRecord{}, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		name, err := r.ReadCString()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, StaticMember: &StaticMemberRecord{
			Access: MemberAccess(props & 0x03),
			Type:   TypeIndex(typ),
			Name:   name,
		}}, nil

	case LF_METHOD:
		count, err := r.ReadU16()
		if err != nil {
			return FieldListRecord{}, err
		}
		methodList, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		name, err := r.ReadCString()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, Method: &MethodRecord{
			OverloadCount: count,
			MethodList:    TypeIndex(methodList),
			Name:          name,
		}}, nil

	case LF_ONEMETHOD:
		props, err := r.ReadU16()
		if err != nil {
			return FieldListRecord{}, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		mp := MethodProperties(props)
		var vbaseoff uint32
		// Only introducing-virtual methods carry an extra vtable-offset
		// field: MethodKindIntroVirtual (4) and MethodKindPureIntro (6).
		methodKind := MethodKind((props >> 2) & 0x07)
		if methodKind == MethodKindIntroVirtual || methodKind == MethodKindPureIntro {
			vbaseoff, err = r.ReadU32()
			if err != nil {
				return FieldListRecord{}, err
			}
		}
		name, err := r.ReadCString()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, OneMethod: &OneMethodRecord{
			Properties: mp,
			Type:       TypeIndex(typ),
			VBaseOff:   vbaseoff,
			Name:       name,
		}}, nil

	case LF_NESTTYPE:
		if err := r.Skip(2); err != nil { // pad
			return FieldListRecord{}, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		name, err := r.ReadCString()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, NestedType: &NestedTypeRecord{Type: TypeIndex(typ), Name: name}}, nil

	case LF_NESTTYPEEX:
		props, err := r.ReadU16()
		if err != nil {
			return FieldListRecord{}, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		name, err := r.ReadCString()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, NestedType: &NestedTypeRecord{
			Access: MemberAccess(props & 0x03),
			Type:   TypeIndex(typ),
			Name:   name,
		}}, nil

	case LF_VFUNCTAB:
		if err := r.Skip(2); err != nil {
			return FieldListRecord{}, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, VFuncTab: &VFuncTabRecord{Type: TypeIndex(typ)}}, nil

	case LF_VFUNCOFF:
		if err := r.Skip(2); err != nil {
			return FieldListRecord{}, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		offset, err := r.ReadI32()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, VFuncOff: &VFuncOffRecord{Type: TypeIndex(typ), Offset: offset}}, nil

	case LF_INDEX:
		if err := r.Skip(2); err != nil {
			return FieldListRecord{}, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, Index: &IndexRecord{Type: TypeIndex(typ)}}, nil

	case LF_FRIENDCLS:
		if err := r.Skip(2); err != nil {
			return FieldListRecord{}, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, FriendClass: &FriendClassRecord{Type: TypeIndex(typ)}}, nil

	case LF_FRIENDFCN:
		if err := r.Skip(2); err != nil {
			return FieldListRecord{}, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return FieldListRecord{}, err
		}
		name, err := r.ReadCString()
		if err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, FriendFunction: &FriendFunctionRecord{Type: TypeIndex(typ), Name: name}}, nil

	default:
		rest := r.RemainingData()
		raw := make([]byte, len(rest))
		copy(raw, rest)
		if err := r.Skip(len(rest)); err != nil {
			return FieldListRecord{}, err
		}
		return FieldListRecord{Kind: kind, Unknown: raw}, nil
	}
}

// MethodListEntry is one overload referenced from an LF_METHODLIST record.
type MethodListEntry struct {
	Properties MethodProperties
	Type       TypeIndex
	VBaseOff   uint32
}

// ParseMethodListRecord decodes an LF_METHODLIST record: the overload set
// an LF_METHOD sub-record points at.
func ParseMethodListRecord(data []byte) ([]MethodListEntry, error) {
	var out []MethodListEntry
	r := stream.NewReader(data)

	for r.Remaining() > 0 {
		props, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if err := r.Skip(2); err != nil { // pad
			return nil, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return nil, err
		}

		entry := MethodListEntry{Properties: MethodProperties(props), Type: TypeIndex(typ)}
		methodKind := MethodKind((props >> 2) & 0x07)
		if methodKind == MethodKindIntroVirtual || methodKind == MethodKindPureIntro {
			vbaseoff, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			entry.VBaseOff = vbaseoff
		}
		out = append(out, entry)
	}

	return out, nil
}
