package mapping

import "fmt"

// Columns of the PNV CMS product export.
const (
	PNVCodeColumn   = "Code"
	PNVParentColumn = "Koda nadprodukta"
)

// PNVImageColumns are collected, in order, into the images field.
var PNVImageColumns = func() []string {
	cols := []string{"Prikazna slika"}
	for i := 1; i <= 8; i++ {
		cols = append(cols, fmt.Sprintf("Dodatna fotografija %d", i))
	}
	return cols
}()

// PNVTable returns the mapping used for the PNV product export.
func PNVTable() *Table {
	return MustTable(
		Direct{Column: PNVCodeColumn, Name: "code"},
		Direct{Column: "EAN koda", Name: "ean_code"},
		Direct{Column: "Product name", Name: "product_name"},
		Direct{Column: "Žeton", Name: "token"},
		Direct{Column: "Kratek opis", Name: "short_description"},
		Direct{Column: "Podroben opis", Name: "detailed_description"},
		Direct{Column: "Kategorije", Name: "categories", Transform: SplitBackslash},
		Collected{Columns: PNVImageColumns, Name: "images"},
		Direct{Column: "Objavljeno", Name: "published", Transform: Bool},
		Direct{Column: "Arhivirano", Name: "archived", Transform: Bool},
		Direct{Column: "Košarica", Name: "cart", Transform: Bool},
		Direct{Column: "Mission", Name: "mission", Transform: Bool},
		Direct{Column: "New", Name: "new", Transform: Bool},
		Direct{Column: "Priporočamo", Name: "recomended", Transform: Bool},
	)
}
