package navigator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/y0ug/glanceauth/pkg/authflow"
)

func TestDerivePhase(t *testing.T) {
	tests := []struct {
		name         string
		authLoading  bool
		localLoading bool
		timedOut     bool
		lastError    string
		want         Phase
	}{
		{"settled", false, false, false, "", PhaseReady},
		{"auth loading", true, false, false, "", PhaseInitializing},
		{"signing in", false, true, false, "", PhaseAuthenticating},
		{"signing in while auth loading", true, true, false, "", PhaseAuthenticating},
		{"timed out while loading", true, false, true, "", PhaseTimedOut},
		{"timed out while signing in", false, true, true, "", PhaseTimedOut},
		{"stale timeout flag", false, false, true, "", PhaseReady},
		{"error wins", true, true, true, "boom", PhaseErrored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePhase(tt.authLoading, tt.localLoading, tt.timedOut, tt.lastError))
		})
	}
}

func TestRouteScreen(t *testing.T) {
	user := &authflow.UserIdentity{ID: "u1"}

	assert.Equal(t, ScreenLogin, RouteScreen(nil, true))
	assert.Equal(t, ScreenOnboarding, RouteScreen(user, false))
	assert.Equal(t, ScreenHome, RouteScreen(user, true))
}
