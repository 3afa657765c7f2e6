package permissions

// CanEdit decides whether a principal holding s may edit an object owned by
// ownerID. editAny always wins; editOwn requires a non-empty matching owner.
func CanEdit(s Set, principalID, ownerID string) bool {
	if s.Has(CapEditAny) {
		return true
	}
	return s.Has(CapEditOwn) && principalID != "" && principalID == ownerID
}
