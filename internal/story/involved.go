package story

import "strings"

// InvolvedCharacters returns the roster entries whose name appears as a
// literal substring of the task text. Matching is case-sensitive: character
// names are proper nouns and lowercase collisions ("rose", "ash") would
// produce false positives.
func InvolvedCharacters(taskText string, roster []Character) []Character {
	if taskText == "" {
		return nil
	}
	var involved []Character
	for _, c := range roster {
		if c.Name == "" {
			continue
		}
		if strings.Contains(taskText, c.Name) {
			involved = append(involved, c)
		}
	}
	return involved
}

// RosterNames returns every character name in roster order.
func RosterNames(roster []Character) []string {
	names := make([]string, 0, len(roster))
	for _, c := range roster {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names
}
