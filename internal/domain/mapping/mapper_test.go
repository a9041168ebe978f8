package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTable(t *testing.T) {
	t.Run("rejects empty table", func(t *testing.T) {
		_, err := NewTable()
		assert.ErrorIs(t, err, ErrEmptyTable)
	})

	t.Run("rejects duplicate field names", func(t *testing.T) {
		_, err := NewTable(
			Direct{Column: "Code", Name: "code"},
			Direct{Column: "Other", Name: "code"},
		)
		assert.ErrorIs(t, err, ErrDuplicateField)
	})

	t.Run("rejects reserved field names", func(t *testing.T) {
		_, err := NewTable(Direct{Column: "Zaloga", Name: "stock_amount"})
		assert.ErrorIs(t, err, ErrReservedField)
	})

	t.Run("rejects derived rule without function", func(t *testing.T) {
		_, err := NewTable(Derived{Name: "slug"})
		assert.ErrorIs(t, err, ErrMissingDerive)
	})

	t.Run("rejects rule without field name", func(t *testing.T) {
		_, err := NewTable(Direct{Column: "Code"})
		assert.ErrorIs(t, err, ErrEmptyFieldName)
	})

	t.Run("preserves rule order", func(t *testing.T) {
		table, err := NewTable(
			Direct{Column: "B", Name: "b"},
			Direct{Column: "A", Name: "a"},
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, table.Fields())
	})
}

func TestTable_With(t *testing.T) {
	base := MustTable(
		Direct{Column: "Code", Name: "code"},
		Direct{Column: "Name", Name: "name"},
	)

	table, err := base.With(
		Direct{Column: "Naziv", Name: "name", Transform: Trim},
		Direct{Column: "Brand", Name: "brand"},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"code", "name", "brand"}, table.Fields())
	assert.Equal(t, []string{"code", "name"}, base.Fields(), "base table must not change")
}

func TestMapper_Map(t *testing.T) {
	ctx := context.Background()

	t.Run("direct rule copies value", func(t *testing.T) {
		m := NewMapper(MustTable(Direct{Column: "Code", Name: "code"}))

		rec, err := m.Map(ctx, Row{"Code": "A1"})
		require.NoError(t, err)
		assert.Equal(t, "A1", rec.Code())
	})

	t.Run("direct rule without transform yields nil for missing column", func(t *testing.T) {
		m := NewMapper(MustTable(Direct{Column: "EAN koda", Name: "ean_code"}))

		rec, err := m.Map(ctx, Row{"Code": "A1"})
		require.NoError(t, err)
		v, ok := rec.Fields["ean_code"]
		assert.True(t, ok)
		assert.Nil(t, v)
	})

	t.Run("direct transform receives value and row", func(t *testing.T) {
		m := NewMapper(MustTable(Direct{
			Column: "Code",
			Name:   "label",
			Transform: func(_ context.Context, value string, row Row) (any, error) {
				return value + "/" + row.Value("Product name"), nil
			},
		}))

		rec, err := m.Map(ctx, Row{"Code": "A1", "Product name": "Lonec"})
		require.NoError(t, err)
		assert.Equal(t, "A1/Lonec", rec.Fields["label"])
	})

	t.Run("collected rule filters empty values", func(t *testing.T) {
		m := NewMapper(MustTable(Collected{Columns: []string{"img1", "img2", "img3", "img4"}, Name: "images"}))

		rec, err := m.Map(ctx, Row{"img1": "a.jpg", "img2": "", "img4": "d.jpg"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.jpg", "d.jpg"}, rec.Fields["images"])
	})

	t.Run("collected rule without values yields empty sequence", func(t *testing.T) {
		m := NewMapper(MustTable(Collected{Columns: []string{"img1"}, Name: "images"}))

		rec, err := m.Map(ctx, Row{})
		require.NoError(t, err)
		assert.Equal(t, []string{}, rec.Fields["images"])
	})

	t.Run("derived rule sees only the raw row", func(t *testing.T) {
		m := NewMapper(MustTable(
			Direct{Column: "Code", Name: "code", Transform: func(_ context.Context, v string, _ Row) (any, error) {
				return "mapped-" + v, nil
			}},
			Derived{Name: "slug", Derive: func(_ context.Context, row Row) (any, error) {
				return "slug-" + row.Value("Code"), nil
			}},
		))

		rec, err := m.Map(ctx, Row{"Code": "A1"})
		require.NoError(t, err)
		assert.Equal(t, "mapped-A1", rec.Fields["code"])
		assert.Equal(t, "slug-A1", rec.Fields["slug"])
	})

	t.Run("transform error aborts the row", func(t *testing.T) {
		boom := errors.New("lookup failed")
		m := NewMapper(MustTable(
			Direct{Column: "Code", Name: "code"},
			Derived{Name: "category", Derive: func(context.Context, Row) (any, error) {
				return nil, boom
			}},
		))

		rec, err := m.Map(ctx, Row{"Code": "A1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		var fe *FieldError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "category", fe.Field)
		assert.Nil(t, rec.Fields)
	})

	t.Run("cancelled context stops mapping", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		m := NewMapper(MustTable(Direct{Column: "Code", Name: "code"}))

		_, err := m.Map(cctx, Row{"Code": "A1"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPNVTable(t *testing.T) {
	m := NewMapper(PNVTable())

	row := Row{
		"Code":                  "PNV-100",
		"EAN koda":              "3830000000001",
		"Product name":          "Posoda za shranjevanje",
		"Žeton":                 "posoda",
		"Kratek opis":           "Kratko",
		"Podroben opis":         "Dolgo",
		"Kategorije":            `Kuhinja \ Shranjevanje \ `,
		"Prikazna slika":        "main.jpg",
		"Dodatna fotografija 1": "",
		"Dodatna fotografija 2": "extra2.jpg",
		"Objavljeno":            "1",
		"Arhivirano":            "0",
		"Košarica":              "1",
		"Mission":               "",
		"New":                   "1",
		"Priporočamo":           "2",
	}

	rec, err := m.Map(context.Background(), row)
	require.NoError(t, err)

	assert.Equal(t, "PNV-100", rec.Code())
	assert.Equal(t, "Posoda za shranjevanje", rec.Name())
	assert.Equal(t, []string{"Kuhinja", "Shranjevanje"}, rec.Fields["categories"])
	assert.Equal(t, []string{"main.jpg", "extra2.jpg"}, rec.Fields["images"])
	assert.Equal(t, true, rec.Fields["published"])
	assert.Equal(t, false, rec.Fields["archived"])
	assert.Equal(t, true, rec.Fields["cart"])
	assert.Equal(t, false, rec.Fields["mission"])
	assert.Equal(t, true, rec.Fields["new"])
	assert.Equal(t, false, rec.Fields["recomended"])
	assert.Len(t, PNVImageColumns, 9)
}

func TestTransforms(t *testing.T) {
	ctx := context.Background()

	t.Run("split backslash on empty value", func(t *testing.T) {
		v, err := SplitBackslash(ctx, "", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{}, v)
	})

	t.Run("int parses and defaults", func(t *testing.T) {
		v, err := Int(ctx, " 22 ", nil)
		require.NoError(t, err)
		assert.Equal(t, 22, v)

		v, err = Int(ctx, "", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, v)

		_, err = Int(ctx, "x", nil)
		assert.Error(t, err)
	})

	t.Run("lookup named transform", func(t *testing.T) {
		_, ok := LookupTransform("bool")
		assert.True(t, ok)
		_, ok = LookupTransform("unknown")
		assert.False(t, ok)
	})
}
