package cache

import "fmt"

// FindingKey is the key of a finding's detail.
func FindingKey(findingID string) string {
	return "findings/" + findingID
}

// TriageKey is the key of a finding's triage result.
func TriageKey(findingID string) string {
	return "findings/" + findingID + "/triage"
}

// ActivitiesKey is the base key of a finding's activity pages. Invalidating it
// invalidates every page.
func ActivitiesKey(findingID string) string {
	return "findings/" + findingID + "/activities"
}

// ActivitiesPageKey is the key of one activity page.
func ActivitiesPageKey(findingID string, page, pageSize int) string {
	return fmt.Sprintf("%s?page=%d&page_size=%d", ActivitiesKey(findingID), page, pageSize)
}
