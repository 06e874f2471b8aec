package domain

// VariantIndex returns the position of the variant within the product's variant list.
func (p Product) VariantIndex(variantID string) (int, bool) {
	if variantID == "" {
		return -1, false
	}
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a deep copy so callers can mutate variants without touching the original aggregate.
func (p Product) Clone() Product {
	clone := p
	if p.Variants != nil {
		clone.Variants = make([]ProductVariant, len(p.Variants))
		copy(clone.Variants, p.Variants)
	}
	return clone
}
