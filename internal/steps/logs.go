package steps

func (s *State) operationLogged(op, alias string) error {
	id, err := s.Aliases.Resolve(alias)
	if err != nil {
		return err
	}
	return s.Oracle.ExpectOperation(op, id)
}

func (s *State) logMatches(pattern string) error {
	return s.Oracle.ExpectAllMatch(pattern)
}
