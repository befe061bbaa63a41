package catalog

// Scenario is a named budget ceiling derived from a product's retail and
// wholesale prices. One negotiation runs per scenario per product.
type Scenario struct {
	Name   string
	Budget float64
}

// ScenarioNames, in the order a sweep visits them.
var ScenarioNames = []string{"high", "retail", "mid", "wholesale", "low"}

// Scenarios derives the five budget ceilings:
//
//	high      retail * 1.2
//	retail    retail
//	mid       (retail + wholesale) / 2
//	wholesale wholesale
//	low       wholesale * 0.8
func Scenarios(p Product) ([]Scenario, error) {
	retail, err := p.Retail()
	if err != nil {
		return nil, err
	}
	wholesale, err := p.Wholesale()
	if err != nil {
		return nil, err
	}
	return []Scenario{
		{Name: "high", Budget: retail * 1.2},
		{Name: "retail", Budget: retail},
		{Name: "mid", Budget: (retail + wholesale) / 2},
		{Name: "wholesale", Budget: wholesale},
		{Name: "low", Budget: wholesale * 0.8},
	}, nil
}
