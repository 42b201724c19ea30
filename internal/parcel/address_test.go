package parcel

import (
	"testing"

	"parcelworks/internal/model"
)

func TestParseAddressStreetAndCityLine(t *testing.T) {
	got := ParseAddress("123 MAIN ST\nBLOOMFIELD,IN 47424-0000")
	want := model.Address{Street: "123 MAIN ST", City: "BLOOMFIELD", State: "IN", Zip: "47424-0000"}
	if got != want {
		t.Fatalf("ParseAddress = %+v, want %+v", got, want)
	}
}

func TestParseAddressCityOnly(t *testing.T) {
	got := ParseAddress("SPRINGVILLE, IN 47462")
	want := model.Address{Street: "", City: "SPRINGVILLE", State: "IN", Zip: "47462"}
	if got != want {
		t.Fatalf("ParseAddress = %+v, want %+v", got, want)
	}
}

func TestParseAddressVariants(t *testing.T) {
	cases := []struct {
		in   string
		want model.Address
	}{
		{"", model.Address{}},
		{"   ", model.Address{}},
		{"PO BOX 12, ODON, IN 47562", model.Address{Street: "PO BOX 12", City: "ODON", State: "IN", Zip: "47562"}},
		{"456 OAK AVE\r\nLINTON, IN 47441", model.Address{Street: "456 OAK AVE", City: "LINTON", State: "IN", Zip: "47441"}},
		// No ZIP and no state: still split street/city.
		{"789 ELM ST, JASONVILLE", model.Address{Street: "789 ELM ST", City: "JASONVILLE"}},
		// Bare ZIP.
		{"47424", model.Address{Zip: "47424"}},
	}
	for _, c := range cases {
		if got := ParseAddress(c.in); got != c.want {
			t.Fatalf("ParseAddress(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestParseAddressIsPure(t *testing.T) {
	in := "123 MAIN ST\nBLOOMFIELD,IN 47424-0000"
	first := ParseAddress(in)
	for i := 0; i < 5; i++ {
		if got := ParseAddress(in); got != first {
			t.Fatalf("ParseAddress varied across calls: %+v vs %+v", got, first)
		}
	}
}
