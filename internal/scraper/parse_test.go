package scraper

import (
	"testing"
)

const listPage = `
<html><body>
<table>
<tr class="work-order" data-order-id="1048213">
  <td><a href="/workorders/1048213">WO# 1048213</a></td>
  <td class="customer-name">Circle K #4521</td>
  <td class="address">1200 Main St, Tampa, FL</td>
  <td class="service">2861 - Meter Calibration</td>
  <td class="status">Scheduled</td>
  <td class="visit-date">03/15/2026</td>
</tr>
<tr class="work-order">
  <td><a href="/workorders/1048219">Work Order 1048219</a></td>
  <td class="customer">7-Eleven #38112</td>
  <td class="status">Open</td>
</tr>
<tr class="work-order">
  <td>no id in this row at all</td>
</tr>
</table>
<a rel="next" href="/workorders?page=2">Next</a>
</body></html>`

func TestParseWorkOrderList(t *testing.T) {
	orders, next, err := ParseWorkOrderList(listPage)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2 (row without an id is skipped)", len(orders))
	}
	if next != "/workorders?page=2" {
		t.Fatalf("next page: got %q", next)
	}

	o := orders[0]
	if o.ExternalID != "1048213" {
		t.Errorf("external id: got %q", o.ExternalID)
	}
	if o.DetailPath != "/workorders/1048213" {
		t.Errorf("detail path: got %q", o.DetailPath)
	}
	if o.StoreNumber != "4521" {
		t.Errorf("store number: got %q", o.StoreNumber)
	}
	if o.ServiceCode != "2861" || o.ServiceDesc != "Meter Calibration" {
		t.Errorf("service: got %q / %q", o.ServiceCode, o.ServiceDesc)
	}
	if o.Status != "Scheduled" {
		t.Errorf("status: got %q", o.Status)
	}
	if o.VisitDate == nil || o.VisitDate.Month() != 3 || o.VisitDate.Day() != 15 {
		t.Errorf("visit date: got %v", o.VisitDate)
	}

	// Second row has no data-order-id attribute; the id comes from the
	// row text.
	if orders[1].ExternalID != "1048219" {
		t.Errorf("regex-extracted id: got %q", orders[1].ExternalID)
	}
	if orders[1].StoreNumber != "38112" {
		t.Errorf("store number from row text: got %q", orders[1].StoreNumber)
	}
}

func TestParseWorkOrderListEmpty(t *testing.T) {
	orders, next, err := ParseWorkOrderList(`<html><body><p>No work orders.</p></body></html>`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(orders) != 0 || next != "" {
		t.Fatalf("empty page: got %d orders, next %q", len(orders), next)
	}
}

const detailPage = `
<html><body>
<ul>
  <li class="dispenser">Dispenser 1/2 - Gilbarco Encore 700 S/N AB123456</li>
  <li class="dispenser">Dispenser 3/4 - Wayne Ovation II S/N: WX-99881</li>
  <li class="dispenser"><span class="title">Dispenser 5/6 - Gilbarco Encore 500</span></li>
</ul>
</body></html>`

func TestParseDispensers(t *testing.T) {
	disp, err := ParseDispensers(detailPage)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(disp) != 3 {
		t.Fatalf("got %d dispensers, want 3", len(disp))
	}

	d := disp[0]
	if d.Position != "1/2" {
		t.Errorf("position: got %q", d.Position)
	}
	if d.Serial != "AB123456" {
		t.Errorf("serial: got %q", d.Serial)
	}
	if d.MakeModel != "Gilbarco Encore 700" {
		t.Errorf("make/model: got %q", d.MakeModel)
	}

	if disp[1].Serial != "WX-99881" {
		t.Errorf("serial with colon: got %q", disp[1].Serial)
	}

	// No serial on the third one.
	if disp[2].Serial != "" {
		t.Errorf("missing serial should stay empty, got %q", disp[2].Serial)
	}
	if disp[2].MakeModel != "Gilbarco Encore 500" {
		t.Errorf("make/model without serial: got %q", disp[2].MakeModel)
	}
}

func TestDispenserMakeModel(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Dispenser 1/2 - Gilbarco Encore 700 S/N AB123456", "Gilbarco Encore 700"},
		{"Wayne Ovation II", "Wayne Ovation II"},
		{"Dispenser 9/10 - Bennett Pacific", "Bennett Pacific"},
	}
	for _, tc := range cases {
		if got := dispenserMakeModel(tc.in); got != tc.want {
			t.Errorf("dispenserMakeModel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
