package uniqueness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epicollect/api/internal/entry"
	"epicollect/api/internal/project"
)

type stored struct {
	uuid  string
	scope string
	ref   string
	value string
}

type fakeFinder struct {
	entries []stored
	queries []Query
	err     error
}

func (f *fakeFinder) HasDuplicate(_ context.Context, q Query) (bool, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return false, f.err
	}
	for _, e := range f.entries {
		if e.uuid == q.ExcludeUUID || e.ref != q.InputRef || e.value != q.Value {
			continue
		}
		if q.ScopeUUID != "" && e.scope != q.ScopeUUID {
			continue
		}
		return true, nil
	}
	return false, nil
}

func scope() []project.InputDef {
	return []project.InputDef{
		{Input: project.Input{Ref: "code", Type: project.TypeText, Uniqueness: project.UniqueForm}},
		{Input: project.Input{Ref: "notes", Type: project.TypeText, Uniqueness: project.UniqueNone}},
		{Input: project.Input{Ref: "tag", Type: project.TypeBarcode, Uniqueness: project.UniqueHierarchy}},
	}
}

func TestCheck_RejectsDuplicateAcrossForm(t *testing.T) {
	finder := &fakeFinder{entries: []stored{{uuid: "other", ref: "code", value: "A1"}}}

	err := New(finder).Check(context.Background(), scope(), Candidate{UUID: "mine", Answers: entry.Answers{"code": entry.Text("A1")}})

	var v *Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "code", v.InputRef)
}

func TestCheck_ExcludesSelf(t *testing.T) {
	finder := &fakeFinder{entries: []stored{{uuid: "mine", ref: "code", value: "A1"}}}

	err := New(finder).Check(context.Background(), scope(), Candidate{UUID: "mine", Answers: entry.Answers{"code": entry.Text("A1")}})
	assert.NoError(t, err)
	require.Len(t, finder.queries, 1)
	assert.Equal(t, "mine", finder.queries[0].ExcludeUUID)
}

func TestCheck_SkipsNonUniqueEmptyAndJumped(t *testing.T) {
	finder := &fakeFinder{}
	answers := entry.Answers{
		"code":  entry.Jumped(entry.KindScalar),
		"notes": entry.Text("dup"),
		"tag":   entry.Text(""),
	}

	require.NoError(t, New(finder).Check(context.Background(), scope(), Candidate{UUID: "mine", Answers: answers}))
	assert.Empty(t, finder.queries)
}

func TestCheck_HierarchyScopesToParent(t *testing.T) {
	finder := &fakeFinder{entries: []stored{{uuid: "sibling", scope: "parent-1", ref: "tag", value: "T"}}}
	v := New(finder)
	answers := entry.Answers{"tag": entry.Text("T")}

	err := v.Check(context.Background(), scope(), Candidate{UUID: "mine", ScopeUUID: "parent-2", Answers: answers})
	assert.NoError(t, err, "same value under another parent is allowed")

	err = v.Check(context.Background(), scope(), Candidate{UUID: "mine", ScopeUUID: "parent-1", Answers: answers})
	var violation *Violation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "tag", violation.InputRef)
}

func TestCheck_FormScopeIgnoresParent(t *testing.T) {
	finder := &fakeFinder{}
	answers := entry.Answers{"code": entry.Text("A1")}
	require.NoError(t, New(finder).Check(context.Background(), scope(), Candidate{UUID: "mine", ScopeUUID: "parent-1", Answers: answers}))
	require.Len(t, finder.queries, 1)
	assert.Equal(t, "", finder.queries[0].ScopeUUID)
}

func TestCheck_FinderError(t *testing.T) {
	boom := errors.New("boom")
	err := New(&fakeFinder{err: boom}).Check(context.Background(), scope(), Candidate{Answers: entry.Answers{"code": entry.Text("x")}})
	assert.ErrorIs(t, err, boom)
	var v *Violation
	assert.False(t, errors.As(err, &v))
}
