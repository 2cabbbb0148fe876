package dynamic

import "github.com/openfroyo/providerkit/pkg/schema"

// ApplyDefaults fills in computed attributes the caller left absent. With
// no prior state every computed-and-absent attribute becomes unknown; with
// prior state the prior value is carried forward, which is the usual
// "computed attribute unchanged unless configuration changes" rule.
// The input must already be coerced against the schema.
func ApplyDefaults(config Value, s schema.Schema, prior Value) Value {
	if config.IsNull() || config.IsUnknown() {
		return config
	}
	return applyBlockDefaults(config, s.Block, prior)
}

func applyBlockDefaults(config Value, b schema.Block, prior Value) Value {
	out := config
	for _, a := range b.Attributes {
		if !a.Computed {
			continue
		}
		got, _ := config.Attr(a.Name)
		if !got.IsNull() {
			continue
		}
		if prior.IsNull() {
			out = out.WithAttr(a.Name, Unknown())
			continue
		}
		if pv, ok := prior.Attr(a.Name); ok {
			out = out.WithAttr(a.Name, pv)
		} else {
			out = out.WithAttr(a.Name, Unknown())
		}
	}

	for _, nb := range b.BlockTypes {
		got, ok := config.Attr(nb.TypeName)
		if !ok || got.IsNull() || got.IsUnknown() {
			continue
		}
		priorChild := Null()
		if !prior.IsNull() {
			if pv, ok := prior.Attr(nb.TypeName); ok {
				priorChild = pv
			}
		}
		switch nb.Nesting {
		case schema.NestingSingle:
			out = out.WithAttr(nb.TypeName, applyBlockDefaults(got, nb.Block, priorChild))
		case schema.NestingList, schema.NestingSet:
			elems, err := got.AsList()
			if err != nil {
				continue
			}
			priorElems, _ := priorChild.AsList()
			updated := make([]Value, len(elems))
			for i, e := range elems {
				pe := Null()
				// Positional prior matching; set reordering is
				// treated as change per the order-dependent rule.
				if i < len(priorElems) {
					pe = priorElems[i]
				}
				updated[i] = applyBlockDefaults(e, nb.Block, pe)
			}
			out = out.WithAttr(nb.TypeName, List(updated))
		}
	}

	return out
}
