package particle

import "testing"

func TestPartnerRefRoundTrip(t *testing.T) {
	g := Gas(17)
	if g.Kind() != PartnerGas || g.Index() != 17 {
		t.Fatalf("Gas(17) = %+v, want kind=gas index=17", g)
	}

	moved := g.WithIndex(4)
	if moved.Kind() != PartnerGas || moved.Index() != 4 {
		t.Fatalf("WithIndex did not preserve kind: %+v", moved)
	}

	s := Star(9)
	if s.Kind() != PartnerStar || s.Index() != 9 {
		t.Fatalf("Star(9) = %+v, want kind=star index=9", s)
	}

	dm := DM(42)
	if dm.Kind() != PartnerDM || dm.DMID() != 42 {
		t.Fatalf("DM(42) = %+v, want kind=dm id=42", dm)
	}
}

func TestLinkageRoundTrip(t *testing.T) {
	// property 2: parts[i].gpart = &gparts[j], gparts[j].Partner references i.
	parts := []Part{{ID: 1, GPart: 0}, {ID: 2, GPart: 1}}
	gparts := []GPart{{Partner: Gas(0)}, {Partner: Gas(1)}}

	for i, p := range parts {
		j := p.GPart
		if gparts[j].Partner.Kind() != PartnerGas {
			t.Fatalf("gpart %d partner kind = %v, want gas", j, gparts[j].Partner.Kind())
		}
		if int(gparts[j].Partner.Index()) != i {
			t.Fatalf("gpart %d partner index = %d, want %d", j, gparts[j].Partner.Index(), i)
		}
	}
}
