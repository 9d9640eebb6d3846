package resource_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/bunkar/pkg/resource"
)

type fabric struct {
	Name  string
	Price string
	Cost  string
}

var public = resource.Func[fabric](func(f fabric) resource.Map {
	return resource.Map{"name": f.Name, "price": f.Price}
})

func TestOneHidesUnlistedFields(t *testing.T) {
	out := resource.One[fabric](public, fabric{Name: "Khadi", Price: "950.00", Cost: "400.00"})
	assert.Equal(t, resource.Map{"name": "Khadi", "price": "950.00"}, out)
}

func TestManyEncodesEmptyAsList(t *testing.T) {
	raw, err := json.Marshal(resource.Many[fabric](public, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	out := resource.Many[fabric](public, []fabric{{Name: "a"}, {Name: "b"}})
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[1]["name"])
}

func TestWithMeta(t *testing.T) {
	out := resource.WithMeta([]int{1}, resource.Map{"count": 1})
	assert.Equal(t, 1, out["meta"].(resource.Map)["count"])
}
