package entity

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestAmountBSON(t *testing.T) {
	big18, _ := new(big.Int).SetString("1000000000000000000000", 10)
	in := struct {
		A Amount `bson:"a"`
	}{A: NewAmount(big18)}

	raw, err := bson.Marshal(in)
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "1000000000000000000000", doc["a"])

	var out struct {
		A Amount `bson:"a"`
	}
	require.NoError(t, bson.Unmarshal(raw, &out))
	assert.Equal(t, 0, out.A.Big().Cmp(big18))
}

func TestAmountJSON(t *testing.T) {
	data, err := json.Marshal(AmountFromInt64(25))
	require.NoError(t, err)
	assert.Equal(t, `"25"`, string(data))

	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"10000000000000000"`), &a))
	assert.Equal(t, "10000000000000000", a.String())

	assert.Error(t, json.Unmarshal([]byte(`"1.5"`), &a))
}

func TestAmountZero(t *testing.T) {
	var a Amount
	assert.True(t, a.IsZero())
	assert.Equal(t, "0", a.String())
	assert.Equal(t, 0, a.Big().Sign())

	b := NewAmount(big.NewInt(5))
	mutated := b.Big()
	mutated.SetInt64(99)
	assert.Equal(t, "5", b.String())
}
