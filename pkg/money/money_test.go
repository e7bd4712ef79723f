package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	assert.Equal(t, 10.13, Round(10.125))
	assert.Equal(t, 0.3, Round(0.1+0.2))
	assert.Equal(t, -1.01, Round(-1.005))
}

func TestLineTotalAndSum(t *testing.T) {
	assert.Equal(t, 59.97, LineTotal(19.99, 3))
	assert.Equal(t, 0.3, Sum(0.1, 0.2))
	assert.Equal(t, 0.0, Sum())
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 100.0, Percent(1000, 10))
	assert.Equal(t, 33.33, Percent(333.33, 10))
}

func TestTotal(t *testing.T) {
	assert.Equal(t, 1020.0, Total(1000, 80, 100))
	assert.Equal(t, 0.0, Total(50, 50, 0))
}

func TestWholeUnits(t *testing.T) {
	assert.Equal(t, int64(1021), WholeUnits(1020.5))
	assert.Equal(t, int64(1020), WholeUnits(1020.49))
}
