package cache_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/MichaelCampos91/pedidos-sub000/internal/cache"
	"github.com/MichaelCampos91/pedidos-sub000/internal/gateway"
)

func TestKeyIgnoresDeclaredValue(t *testing.T) {
	base := gateway.QuoteRequest{
		DestinationZip: "01310-100",
		WeightKg:       decimal.RequireFromString("1.2"),
		DeclaredValue:  decimal.NewFromInt(100),
	}
	assert.Equal(t, "quote:01310-100:1.2", cache.Key(base))

	richer := base
	richer.DeclaredValue = decimal.NewFromInt(5000)
	assert.Equal(t, cache.Key(base), cache.Key(richer))

	heavier := base
	heavier.WeightKg = decimal.RequireFromString("3.5")
	assert.NotEqual(t, cache.Key(base), cache.Key(heavier))
}
