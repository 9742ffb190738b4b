package server

import "net/http"

// Instance is one row of the instances table. The listing is a static
// fixture for now; the compute inventory service is not wired up yet.
type Instance struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region"`
	Plan   string `json:"plan"`
	Image  string `json:"image"`
	IPv4   string `json:"ipv4"`
	Status string `json:"status"`
}

var instanceFixture = []Instance{
	{ID: "vps-1001", Name: "web-01", Region: "fsn1", Plan: "cx22", Image: "debian-12", IPv4: "203.0.113.10", Status: "running"},
	{ID: "vps-1002", Name: "web-02", Region: "fsn1", Plan: "cx22", Image: "debian-12", IPv4: "203.0.113.11", Status: "running"},
	{ID: "vps-1003", Name: "db-01", Region: "nbg1", Plan: "cx42", Image: "ubuntu-24.04", IPv4: "203.0.113.20", Status: "running"},
	{ID: "vps-1004", Name: "staging-01", Region: "hel1", Plan: "cx32", Image: "rocky-9", IPv4: "203.0.113.30", Status: "stopped"},
}

// HandleListInstances serves the instance inventory.
func HandleListInstances() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"result": instanceFixture})
	}
}
