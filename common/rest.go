package common

// APIVersion is the version of the REST control API
const APIVersion uint = 1

// InfoResponse is the JSON response to the /info REST method
type InfoResponse struct {
	Software string `json:"software"`
	Version  string `json:"version"`
	API      uint   `json:"apiVersion"`
}

// StatsResponse is the JSON response to the /stats REST method, a
// snapshot of the coordinator's matching state for diagnostics
type StatsResponse struct {
	Connections   int  `json:"connections"`
	RandomWaiting bool `json:"randomWaiting"`
	WaitingRooms  int  `json:"waitingRooms"`
	Pairs         int  `json:"pairs"`
}
