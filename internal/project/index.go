package project

import "fmt"

// InputDef is an input together with its placement in the hierarchy.
// Group members are indexed like top-level inputs of their form; GroupRef
// only records where they came from.
type InputDef struct {
	Input
	FormRef   string
	BranchRef string
	GroupRef  string
}

type formInfo struct {
	position  int
	parentRef string
	inputs    []string
	branches  map[string][]string
}

// Index maps every input ref of a structure to its definition. It is built
// once per structure load; lookups are O(1).
type Index struct {
	byRef map[string]InputDef
	forms map[string]*formInfo
	order []string
}

func NewIndex(s Structure) (*Index, error) {
	idx := &Index{
		byRef: make(map[string]InputDef),
		forms: make(map[string]*formInfo, len(s.Forms)),
	}
	for pos, form := range s.Forms {
		if form.Ref == "" {
			return nil, fmt.Errorf("%w: form %d has no ref", ErrInvalidStructure, pos)
		}
		if _, dup := idx.forms[form.Ref]; dup {
			return nil, fmt.Errorf("%w: duplicate form ref %s", ErrInvalidStructure, form.Ref)
		}
		info := &formInfo{position: pos, branches: make(map[string][]string)}
		if pos > 0 {
			info.parentRef = s.Forms[pos-1].Ref
		}
		idx.forms[form.Ref] = info
		idx.order = append(idx.order, form.Ref)

		for _, input := range form.Inputs {
			if err := idx.addTop(info, form.Ref, input); err != nil {
				return nil, err
			}
		}
	}
	return idx, nil
}

func (idx *Index) addTop(info *formInfo, formRef string, input Input) error {
	if err := idx.add(InputDef{Input: input, FormRef: formRef}); err != nil {
		return err
	}
	info.inputs = append(info.inputs, input.Ref)

	switch input.Type {
	case TypeGroup:
		for _, member := range input.Group {
			if member.Type == TypeGroup || member.Type == TypeBranch {
				return fmt.Errorf("%w: %s nested inside group %s", ErrInvalidStructure, member.Type, input.Ref)
			}
			if err := idx.add(InputDef{Input: member, FormRef: formRef, GroupRef: input.Ref}); err != nil {
				return err
			}
			info.inputs = append(info.inputs, member.Ref)
		}
	case TypeBranch:
		refs := make([]string, 0, len(input.Branch))
		for _, member := range input.Branch {
			if member.Type == TypeBranch {
				return fmt.Errorf("%w: branch nested inside branch %s", ErrInvalidStructure, input.Ref)
			}
			if err := idx.add(InputDef{Input: member, FormRef: formRef, BranchRef: input.Ref}); err != nil {
				return err
			}
			refs = append(refs, member.Ref)
			if member.Type == TypeGroup {
				for _, nested := range member.Group {
					if nested.Type == TypeGroup || nested.Type == TypeBranch {
						return fmt.Errorf("%w: %s nested inside group %s", ErrInvalidStructure, nested.Type, member.Ref)
					}
					if err := idx.add(InputDef{Input: nested, FormRef: formRef, BranchRef: input.Ref, GroupRef: member.Ref}); err != nil {
						return err
					}
					refs = append(refs, nested.Ref)
				}
			}
		}
		info.branches[input.Ref] = refs
	}
	return nil
}

func (idx *Index) add(def InputDef) error {
	if def.Ref == "" {
		return fmt.Errorf("%w: input without ref in form %s", ErrInvalidStructure, def.FormRef)
	}
	if !def.Type.Valid() {
		return fmt.Errorf("%w: input %s has unknown type %q", ErrInvalidStructure, def.Ref, def.Type)
	}
	if _, dup := idx.byRef[def.Ref]; dup {
		return fmt.Errorf("%w: duplicate input ref %s", ErrInvalidStructure, def.Ref)
	}
	if def.Uniqueness == "" {
		def.Uniqueness = UniqueNone
	}
	if def.Unique() {
		if _, ok := uniqueCapable[def.Type]; !ok {
			return fmt.Errorf("%w: input %s of type %s cannot be unique", ErrInvalidStructure, def.Ref, def.Type)
		}
	}
	def.Group = nil
	def.Branch = nil
	idx.byRef[def.Ref] = def
	return nil
}

func (idx *Index) Lookup(ref string) (InputDef, bool) {
	def, ok := idx.byRef[ref]
	return def, ok
}

func (idx *Index) HasForm(formRef string) bool {
	_, ok := idx.forms[formRef]
	return ok
}

// RootForm returns the ref of the first form of the hierarchy.
func (idx *Index) RootForm() string {
	if len(idx.order) == 0 {
		return ""
	}
	return idx.order[0]
}

// ParentForm returns the parent form ref, or "" for the root form.
func (idx *Index) ParentForm(formRef string) string {
	if info, ok := idx.forms[formRef]; ok {
		return info.parentRef
	}
	return ""
}

// IsBranch reports whether ref names a branch input of formRef.
func (idx *Index) IsBranch(formRef, ref string) bool {
	def, ok := idx.byRef[ref]
	return ok && def.Type == TypeBranch && def.FormRef == formRef && def.BranchRef == ""
}

// Scope returns the ordered inputs answerable by an entry of formRef, or by a
// branch entry of branchRef when branchRef is not empty.
func (idx *Index) Scope(formRef, branchRef string) []InputDef {
	info, ok := idx.forms[formRef]
	if !ok {
		return nil
	}
	refs := info.inputs
	if branchRef != "" {
		refs = info.branches[branchRef]
	}
	defs := make([]InputDef, 0, len(refs))
	for _, ref := range refs {
		defs = append(defs, idx.byRef[ref])
	}
	return defs
}

// InScope reports whether ref may be answered in the given scope.
func (idx *Index) InScope(ref, formRef, branchRef string) bool {
	def, ok := idx.byRef[ref]
	return ok && def.FormRef == formRef && def.BranchRef == branchRef
}
