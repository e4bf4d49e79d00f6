package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"abc", false},
		{" abc ", false},
	}
	for _, c := range cases {
		got := IsEmpty(c.input)
		if got != c.want {
			t.Errorf("IsEmpty(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

type sampleRequest struct {
	Name    string     `json:"name" validate:"required,max=5"`
	Kind    string     `json:"kind" validate:"required,oneof=A B"`
	Start   time.Time  `json:"start" validate:"required"`
	End     *time.Time `json:"end,omitempty"`
	Ignored string     `json:"-"`
}

func TestStruct(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		errs := Struct(sampleRequest{Name: "abc", Kind: "A", Start: time.Now()})
		assert.Empty(t, errs)
		assert.NoError(t, errs.Err())
	})

	t.Run("reports json field names", func(t *testing.T) {
		errs := Struct(sampleRequest{Name: "toolong", Kind: "C"})
		require.Len(t, errs, 3)

		m := errs.ToMap()
		assert.Equal(t, "must be at most 5", m["name"])
		assert.Equal(t, "must be one of: A B", m["kind"])
		assert.Equal(t, "is required", m["start"])
		assert.Error(t, errs.Err())
	})
}

func TestValidationErrors_Add(t *testing.T) {
	var errs ValidationErrors
	assert.NoError(t, errs.Err())

	errs.Add("departed", "must be after arrived")
	require.Error(t, errs.Err())
	assert.Equal(t, "departed: must be after arrived", errs.Error())
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "email", Message: "invalid"},
		{Field: "phone", Message: "required"},
	}
	want := "email: invalid; phone: required"
	if errs.Error() != want {
		t.Errorf("ValidationErrors.Error() = %q, want %q", errs.Error(), want)
	}
}

func TestValidationErrors_ToMap(t *testing.T) {
	errs := ValidationErrors{
		{Field: "email", Message: "invalid"},
		{Field: "phone", Message: "required"},
	}
	got := errs.ToMap()
	want := map[string]string{"email": "invalid", "phone": "required"}
	if len(got) != len(want) {
		t.Errorf("ValidationErrors.ToMap() length = %d, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("ValidationErrors.ToMap()[%q] = %q, want %q", k, got[k], v)
		}
	}
}
