package metrics

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MetricsEngineMock is mock for the MetricsEngine interface
type MetricsEngineMock struct {
	mock.Mock
}

func (me *MetricsEngineMock) RecordConnectionAccept(success bool) {
	me.Called(success)
}

func (me *MetricsEngineMock) RecordConnectionClose(success bool) {
	me.Called(success)
}

func (me *MetricsEngineMock) RecordRequest(status RequestStatus) {
	me.Called(status)
}

func (me *MetricsEngineMock) RecordRequestTime(status RequestStatus, length time.Duration) {
	me.Called(status, length)
}

func (me *MetricsEngineMock) RecordAuction(labels AuctionLabels, length time.Duration) {
	me.Called(labels, length)
}

func (me *MetricsEngineMock) RecordAdapterRequest(labels AdapterLabels) {
	me.Called(labels)
}

func (me *MetricsEngineMock) RecordAdapterTime(labels AdapterLabels, length time.Duration) {
	me.Called(labels, length)
}

func (me *MetricsEngineMock) RecordAdapterPrice(adapter string, cpm float64) {
	me.Called(adapter, cpm)
}

func (me *MetricsEngineMock) RecordAdapterPanic(adapter string) {
	me.Called(adapter)
}

func (me *MetricsEngineMock) RecordIdempotency(hit bool) {
	me.Called(hit)
}

func (me *MetricsEngineMock) RecordOutcomeFlush(records int, success bool) {
	me.Called(records, success)
}

func (me *MetricsEngineMock) RecordOutcomeDropped(reason OutcomeDropReason, count int) {
	me.Called(reason, count)
}

func (me *MetricsEngineMock) RecordRiskScoring(status RiskScoringStatus) {
	me.Called(status)
}

func (me *MetricsEngineMock) RecordPrivacy(labels PrivacyLabels) {
	me.Called(labels)
}
