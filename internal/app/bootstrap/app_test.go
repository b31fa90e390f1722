package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://wb:****@db:5432/wallbox", maskDSN("postgres://wb:secret@db:5432/wallbox"))
	assert.Equal(t, "host=db user=wb", maskDSN("host=db user=wb"))
}
