package intent

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"chatintent/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCorpus(t *testing.T, samples ...Sample) *Corpus {
	t.Helper()
	c, err := NewCorpus(samples)
	require.NoError(t, err)
	return c
}

func sample(text, intent string) Sample {
	ut := UserTypeAdmin
	if len(intent) >= 8 && intent[:8] == "customer" {
		ut = UserTypeCustomer
	}
	return Sample{Text: text, Intent: intent, UserType: ut}
}

func TestBuildLabelSpace_Bijection(t *testing.T) {
	corpus := mustCorpus(t,
		sample("Show cart", "customer_view_cart"),
		sample("Show all restaurants", "admin_list_restaurants"),
		sample("Add new dish", "admin_add_food"),
		sample("Checkout", "customer_place_order"),
		sample("Show all orders", "admin_list_orders"),
	)

	ls, err := BuildLabelSpace(corpus)
	require.NoError(t, err)
	require.Equal(t, 5, ls.NumClasses())

	for _, name := range ls.Intents() {
		id, ok := ls.ID(name)
		require.True(t, ok)
		back, ok := ls.Intent(id)
		require.True(t, ok)
		assert.Equal(t, name, back)
	}
	for id := 0; id < ls.NumClasses(); id++ {
		name, ok := ls.Intent(id)
		require.True(t, ok)
		got, _ := ls.ID(name)
		assert.Equal(t, id, got)
	}

	_, ok := ls.Intent(ls.NumClasses())
	assert.False(t, ok)
	_, ok = ls.Intent(-1)
	assert.False(t, ok)

	assert.Equal(t, []string{
		"admin_add_food",
		"admin_list_orders",
		"admin_list_restaurants",
		"customer_place_order",
		"customer_view_cart",
	}, ls.Intents())
}

func TestBuildLabelSpace_IndependentOfOrder(t *testing.T) {
	a := mustCorpus(t,
		sample("Show cart", "customer_view_cart"),
		sample("Show all restaurants", "admin_list_restaurants"),
		sample("Checkout", "customer_place_order"),
	)
	b := mustCorpus(t,
		sample("Checkout", "customer_place_order"),
		sample("Show all restaurants", "admin_list_restaurants"),
		sample("Show cart", "customer_view_cart"),
		sample("Show cart", "customer_view_cart"),
	)

	first, err := BuildLabelSpace(a)
	require.NoError(t, err)
	again, err := BuildLabelSpace(a)
	require.NoError(t, err)
	reordered, err := BuildLabelSpace(b)
	require.NoError(t, err)

	assert.Equal(t, first.IntentToID(), again.IntentToID())
	assert.Equal(t, first.IntentToID(), reordered.IntentToID())
	assert.Equal(t, first.Hash(), reordered.Hash())

	j1, err := json.Marshal(first)
	require.NoError(t, err)
	j2, err := json.Marshal(reordered)
	require.NoError(t, err)
	assert.Equal(t, string(j1), string(j2))
}

func TestBuildLabelSpace_Errors(t *testing.T) {
	_, err := BuildLabelSpace(mustCorpus(t))
	assert.True(t, stderrors.Is(err, errors.ErrConfiguration))

	_, err = BuildLabelSpace(mustCorpus(t,
		sample("Show cart", "customer_view_cart"),
		sample("View cart", "customer_view_cart"),
	))
	assert.True(t, stderrors.Is(err, errors.ErrConfiguration))

	_, err = NewLabelSpace([]string{"admin_list_foods", "Admin_List_Foods"})
	assert.True(t, stderrors.Is(err, errors.ErrConfiguration))
}

func TestLabelSpace_JSONShape(t *testing.T) {
	ls, err := NewLabelSpace([]string{"b_intent", "a_intent"})
	require.NoError(t, err)

	data, err := json.Marshal(ls)
	require.NoError(t, err)

	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Len(t, generic, 4)
	for _, key := range []string{"intent_to_id", "id_to_intent", "intents", "num_classes"} {
		assert.Contains(t, generic, key)
	}
	assert.JSONEq(t, `{"0":"a_intent","1":"b_intent"}`, string(generic["id_to_intent"]))

	var decoded LabelSpace
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ls.IntentToID(), decoded.IntentToID())
}

func TestLabelSpace_UnmarshalRejectsInconsistentMapping(t *testing.T) {
	bad := `{"intent_to_id":{"a":1,"b":0},"id_to_intent":{"0":"a","1":"b"},"intents":["a","b"],"num_classes":2}`
	var ls LabelSpace
	err := json.Unmarshal([]byte(bad), &ls)
	assert.True(t, errors.HasCode(err, errors.CodeConfiguration))
}

func TestSampleValidate(t *testing.T) {
	assert.NoError(t, sample("Show cart", "customer_view_cart").Validate())
	assert.Error(t, Sample{Text: "   ", Intent: "x", UserType: UserTypeAdmin}.Validate())
	assert.Error(t, Sample{Text: "hi", Intent: "", UserType: UserTypeAdmin}.Validate())
	assert.Error(t, Sample{Text: "hi", Intent: "x", UserType: "guest"}.Validate())
}
