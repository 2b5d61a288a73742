package tpi


// ReferenceGraph captures, for every record in a TPI/IPI stream, the set of
// other record indices it refers to. Because every reference in a
// well-formed stream points strictly backward (a record's TypeIndex must
// exceed every type index it names), rank is simply 1 + the max rank among
// referenced records, computed in a single forward pass with no recursion.
type ReferenceGraph struct {
	begin TypeIndex
	refs  [][]TypeIndex // refs[i] = referenced indices of record (begin+i)
	rank  []uint32
}

// References returns ti's outgoing references, if ti is in range.
func (g *ReferenceGraph) References(ti TypeIndex) []TypeIndex {
	slot := int(ti - g.begin)
	if slot < 0 || slot >= len(g.refs) {
		return nil
	}
	return g.refs[slot]
}

// Rank returns ti's rank: 0 for a record with no forward-looking
// dependencies (only primitive/simple-type references), otherwise
// 1+max(rank of each referenced record).
func (g *ReferenceGraph) Rank(ti TypeIndex) uint32 {
	slot := int(ti - g.begin)
	if slot < 0 || slot >= len(g.rank) {
		return 0
	}
	return g.rank[slot]
}

// References lazily builds and returns the Stream's reference graph.
func (s *Stream) References() (*ReferenceGraph, error) {
	s.refGraphOnce.Do(func() {
		s.refGraph, s.refGraphErr = buildReferenceGraph(s)
	})
	return s.refGraph, s.refGraphErr
}

func buildReferenceGraph(s *Stream) (*ReferenceGraph, error) {
	begin := s.Header.TypeIndexBegin
	n := int(s.Header.TypeCount())
	g := &ReferenceGraph{begin: begin, refs: make([][]TypeIndex, n), rank: make([]uint32, n)}

	for i := 0; i < n; i++ {
		ti := begin + TypeIndex(i)
		rec, err := s.GetTypeRecord(ti)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}

		refs := extractReferences(rec.Kind, rec.Data)
		// Field lists additionally reference every member/base type their
		// sub-records name, and LF_METHODLIST extends that to overloads.
		if rec.Kind == LF_FIELDLIST {
			if subs, err := ParseFieldListRecord(rec.Data); err == nil {
				refs = append(refs, fieldListReferences(subs)...)
			} else if s.diagSink != nil {
				s.diagSink.Warnf(s.diagStream, int64(ti), "failed to decode field list for rank/reference computation: %s", err)
			}
		}
		if rec.Kind == LF_METHODLIST {
			if entries, err := ParseMethodListRecord(rec.Data); err == nil {
				for _, e := range entries {
					refs = append(refs, e.Type)
				}
			} else if s.diagSink != nil {
				s.diagSink.Warnf(s.diagStream, int64(ti), "failed to decode method list for rank/reference computation: %s", err)
			}
		}

		g.refs[i] = refs

		var maxRank uint32
		var hasQualifyingRef bool
		for _, ref := range refs {
			if ref.IsSimpleType() || ref < begin || ref >= ti {
				continue // primitive, or out of this stream's numbering range
			}
			hasQualifyingRef = true
			if r := g.Rank(ref); r > maxRank {
				maxRank = r
			}
		}
		if hasQualifyingRef {
			g.rank[i] = maxRank + 1
		} else {
			g.rank[i] = 0
		}
	}

	return g, nil
}

// extractReferences reads just the leading TypeIndex-shaped fields of a
// record kind this package knows how to decode. It is deliberately
// conservative: a record kind it does not recognize contributes no edges,
// which only ever under-counts rank, never corrupts it.
func extractReferences(kind TypeRecordKind, data []byte) []TypeIndex {
	switch kind {
	case LF_MODIFIER:
		if rec, err := ParseModifierRecord(data); err == nil {
			return []TypeIndex{rec.ModifiedType}
		}
	case LF_POINTER:
		if rec, err := ParsePointerRecord(data); err == nil {
			refs := []TypeIndex{rec.ReferentType}
			if rec.ContainingClass != 0 {
				refs = append(refs, rec.ContainingClass)
			}
			return refs
		}
	case LF_PROCEDURE:
		if rec, err := ParseProcedureRecord(data); err == nil {
			return []TypeIndex{rec.ReturnType, rec.ArgumentList}
		}
	case LF_MFUNCTION:
		if rec, err := ParseMFunctionRecord(data); err == nil {
			return []TypeIndex{rec.ReturnType, rec.ClassType, rec.ThisType, rec.ArgumentList}
		}
	case LF_ARGLIST:
		if rec, err := ParseArgListRecord(data); err == nil {
			return rec.ArgTypes
		}
	case LF_ARRAY:
		if rec, err := ParseArrayRecord(data); err == nil {
			return []TypeIndex{rec.ElementType, rec.IndexType}
		}
	case LF_CLASS, LF_STRUCTURE, LF_INTERFACE:
		if rec, err := ParseClassRecord(data); err == nil {
			return []TypeIndex{rec.FieldList, rec.DerivedFrom, rec.VShape}
		}
	case LF_UNION:
		if rec, err := ParseUnionRecord(data); err == nil {
			return []TypeIndex{rec.FieldList}
		}
	case LF_ENUM:
		if rec, err := ParseEnumRecord(data); err == nil {
			return []TypeIndex{rec.UnderlyingType, rec.FieldList}
		}
	case LF_BITFIELD:
		if rec, err := ParseBitFieldRecord(data); err == nil {
			return []TypeIndex{rec.Type}
		}
	case LF_FUNC_ID:
		if rec, err := ParseFuncIDRecord(data); err == nil {
			return []TypeIndex{TypeIndex(rec.ParentScope), rec.FunctionType}
		}
	case LF_MFUNC_ID:
		if rec, err := ParseMFuncIDRecord(data); err == nil {
			return []TypeIndex{rec.ParentType, rec.FunctionType}
		}
	case LF_UDT_SRC_LINE:
		if rec, err := ParseUDTSrcLineRecord(data); err == nil {
			return []TypeIndex{rec.UDT, TypeIndex(rec.SourceFile)}
		}
	case LF_UDT_MOD_SRC_LINE:
		if rec, err := ParseUDTModSrcLineRecord(data); err == nil {
			return []TypeIndex{rec.UDT, TypeIndex(rec.SourceFile)}
		}
	case LF_SUBSTR_LIST:
		if rec, err := ParseSubstrListRecord(data); err == nil {
			out := make([]TypeIndex, len(rec.Strings))
			for i, s := range rec.Strings {
				out[i] = TypeIndex(s)
			}
			return out
		}
	}

	return nil
}

func fieldListReferences(subs []FieldListRecord) []TypeIndex {
	var out []TypeIndex
	for _, s := range subs {
		switch {
		case s.BaseClass != nil:
			out = append(out, s.BaseClass.Type)
		case s.VirtualBaseClass != nil:
			out = append(out, s.VirtualBaseClass.BaseType, s.VirtualBaseClass.VBPtrType)
		case s.Member != nil:
			out = append(out, s.Member.Type)
		case s.StaticMember != nil:
			out = append(out, s.StaticMember.Type)
		case s.Method != nil:
			out = append(out, s.Method.MethodList)
		case s.OneMethod != nil:
			out = append(out, s.OneMethod.Type)
		case s.NestedType != nil:
			out = append(out, s.NestedType.Type)
		case s.VFuncTab != nil:
			out = append(out, s.VFuncTab.Type)
		case s.VFuncOff != nil:
			out = append(out, s.VFuncOff.Type)
		case s.Index != nil:
			out = append(out, s.Index.Type)
		case s.FriendClass != nil:
			out = append(out, s.FriendClass.Type)
		case s.FriendFunction != nil:
			out = append(out, s.FriendFunction.Type)
		}
	}
	return out
}
