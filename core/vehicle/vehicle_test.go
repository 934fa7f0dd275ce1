package vehicle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evbridge/voc2mqtt/core/attr"
)

type fakeSource struct {
	attrs    attr.Tree
	fetchErr error
	cmdErr   error
	commands []string
}

func (f *fakeSource) FetchAttributes(_ context.Context, _ string) (attr.Tree, error) {
	return f.attrs, f.fetchErr
}

func (f *fakeSource) InvokeCommand(_ context.Context, _ string, command string, _ map[string]any) error {
	f.commands = append(f.commands, command)
	return f.cmdErr
}

func TestIdentifierPrefersRegistration(t *testing.T) {
	v := New(&fakeSource{}, attr.Tree{"VIN": "YV1AB12C3D4567890", "registrationNumber": "ABC123"})
	assert.Equal(t, "ABC123", v.Identifier())

	v = New(&fakeSource{}, attr.Tree{"VIN": "YV1AB12C3D4567890"})
	assert.Equal(t, "YV1AB12C3D4567890", v.Identifier())
}

func TestUniqueIDIsLowercaseVIN(t *testing.T) {
	v := New(&fakeSource{}, attr.Tree{"VIN": "YV1AB12C3D4567890"})
	assert.Equal(t, "yv1ab12c3d4567890", v.UniqueID())
}

func TestUpdateReplacesAttributes(t *testing.T) {
	src := &fakeSource{attrs: attr.Tree{"VIN": "V1", "odometer": 2000.0}}
	v := New(src, attr.Tree{"VIN": "V1", "odometer": 1000.0})

	require.NoError(t, v.Update(context.Background()))
	got, err := attr.Resolve(v.Attrs(), "odometer")
	require.NoError(t, err)
	assert.Equal(t, 2000.0, got)
}

func TestUpdateError(t *testing.T) {
	src := &fakeSource{fetchErr: errors.New("boom")}
	v := New(src, attr.Tree{"VIN": "V1"})
	assert.Error(t, v.Update(context.Background()))
}

func TestIsHeaterOn(t *testing.T) {
	v := New(&fakeSource{}, attr.Tree{"heater": map[string]any{"status": "off"}})
	assert.False(t, v.IsHeaterOn())

	v.SetAttrs(attr.Tree{"heater": map[string]any{"status": "on"}})
	assert.True(t, v.IsHeaterOn())

	v.SetAttrs(attr.Tree{})
	assert.False(t, v.IsHeaterOn())
}

func TestAvailability(t *testing.T) {
	v := New(&fakeSource{}, attr.Tree{"VIN": "V1"})
	assert.True(t, v.Available())

	v.SetAvailable(false)
	assert.False(t, v.Available())

	v.SetAvailable(true)
	assert.True(t, v.Available())
}

func TestCallRecordsCommand(t *testing.T) {
	src := &fakeSource{}
	v := New(src, attr.Tree{"VIN": "V1"})
	require.NoError(t, v.Call(context.Background(), CommandLock))
	assert.Equal(t, []string{CommandLock}, src.commands)
}
