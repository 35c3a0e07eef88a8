package pmconfig

import (
	"testing"
	"time"

	"github.com/cellmesh/parallelmgr/internal/pmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsUnknownLBMethod(t *testing.T) {
	cfg := Default()
	cfg.LBMethod = "metis"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, pmerrors.IsConfigError(err))
}

func TestValidateAcceptsRIBAndHSFCAliases(t *testing.T) {
	cfg := Default()
	for _, method := range []string{"rib", "hsfc"} {
		cfg.LBMethod = method
		assert.NoError(t, cfg.Validate(), "lb_method %q should validate (aliased to rcb)", method)
	}
}

func TestValidateRejectsDuplicateLBProp(t *testing.T) {
	cfg := Default()
	cfg.LBProps = []string{"x", "x"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, pmerrors.IsConfigError(err))
}

func TestValidateRejectsEmptyLBProps(t *testing.T) {
	cfg := Default()
	cfg.LBProps = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, pmerrors.IsConfigError(err))
}

func TestValidateRejectsNonPositiveRadiusScale(t *testing.T) {
	cfg := Default()
	cfg.RadiusScale = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, pmerrors.IsConfigError(err))
}

func TestValidateRejectsInvertedDomain(t *testing.T) {
	cfg := Default()
	cfg.Domain = DomainLimits{Enabled: true, MinX: 10, MaxX: 0, MinY: 0, MaxY: 10}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, pmerrors.IsConfigError(err))
}

func TestValidateRejectsInvalidCollectiveTimeout(t *testing.T) {
	cfg := Default()
	cfg.Communicator.CollectiveTimeout = "not-a-duration"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, pmerrors.IsConfigError(err))
}

func TestCommunicatorTimeoutEmptyStringDisablesCheck(t *testing.T) {
	c := CommunicatorConfig{Kind: "local"}
	d, err := c.Timeout()
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestCommunicatorTimeoutParsesDuration(t *testing.T) {
	c := CommunicatorConfig{Kind: "local", CollectiveTimeout: "45s"}
	d, err := c.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)
}

func TestLoadMissingFileReturnsConfigError(t *testing.T) {
	_, err := Load("/nonexistent/path/pm.yaml")
	require.Error(t, err)
	assert.True(t, pmerrors.IsConfigError(err))
}
