package selfprofile

import (
	"bytes"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Logger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(log.NewLogfmtLogger(&buf))

	l.Infof("uploading %d profiles", 3)
	l.Errorf("upload failed: %s", "boom")
	assert.Equal(t,
		"level=info component=selfprofile msg=\"uploading 3 profiles\"\n"+
			"level=error component=selfprofile msg=\"upload failed: boom\"\n",
		buf.String())
}

func Test_StartDisabled(t *testing.T) {
	stop, err := Start(Config{}, log.NewNopLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, stop())
}
