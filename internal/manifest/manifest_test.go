package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitID(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		wantGroup string
		wantName  string
		wantErr   bool
	}{
		{name: "valid id", id: "vitals/heartbeat", wantGroup: "vitals", wantName: "heartbeat"},
		{name: "nested name keeps first slash", id: "net/dns/config", wantGroup: "net", wantName: "dns/config"},
		{name: "empty id", id: "", wantErr: true},
		{name: "no slash", id: "heartbeat", wantErr: true},
		{name: "leading slash", id: "/heartbeat", wantErr: true},
		{name: "trailing slash", id: "vitals/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group, name, err := SplitID(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantGroup, group)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := New("vitals/heartbeat", "1.0.0")

	t.Run("valid manifest", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("group mismatch", func(t *testing.T) {
		m := valid
		m.Group = "system"
		err := m.Validate()
		require.Error(t, err)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Reason, "group mismatch")
	})

	t.Run("missing version", func(t *testing.T) {
		m := valid
		m.Version = ""
		assert.Error(t, m.Validate())
	})

	t.Run("unknown hook event", func(t *testing.T) {
		m := valid
		m.Hooks = map[HookEvent]string{"on_explode": "handler"}
		assert.Error(t, m.Validate())
	})

	t.Run("known hook events pass", func(t *testing.T) {
		m := valid
		m.Hooks = map[HookEvent]string{
			HookOnLoad:       "onLoad",
			HookOnSuccess:    "onSuccess",
			HookAfterResolve: "cleanup",
		}
		assert.NoError(t, m.Validate())
	})

	t.Run("self dependency", func(t *testing.T) {
		m := valid
		m.HardDeps = []string{"vitals/heartbeat"}
		assert.Error(t, m.Validate())
	})

	t.Run("unknown flavor", func(t *testing.T) {
		m := valid
		m.Flavor = "cron"
		assert.Error(t, m.Validate())
	})
}

func TestNewDefaults(t *testing.T) {
	m := New("system/create-user", "0.1.0")
	assert.Equal(t, "system", m.Group)
	assert.True(t, m.HotUnloadAllowed)
	assert.Equal(t, FlavorTask, m.Flavor)
}

func TestEqualIgnoresSliceOrder(t *testing.T) {
	a := New("g/m", "1.0.0")
	a.HardDeps = []string{"g/a", "g/b"}
	a.Provides = []string{"cap.x", "cap.y"}

	b := New("g/m", "1.0.0")
	b.HardDeps = []string{"g/b", "g/a"}
	b.Provides = []string{"cap.y", "cap.x"}

	assert.True(t, a.Equal(b))

	b.Version = "1.0.1"
	assert.False(t, a.Equal(b))
}
