package dnc_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/katalvlaran/lcdn/dnc"
	"github.com/katalvlaran/lcdn/topology"
)

// ringTopology builds a three-switch ring with two hosts: switches
// 1-2-3 in a ring, host 4 attached to switch 1, host 5 attached to
// switch 2.
func ringTopology(t *testing.T, priorities int) *topology.Store {
	t.Helper()
	st, err := topology.NewStore(priorities)
	require.NoError(t, err)

	for _, id := range []int{1, 2, 3} {
		require.NoError(t, st.AddNode(id, ""))
	}
	edges := []topology.Edge{
		{ID: 1, U: 1, V: 2, Rate: 125e6, QSize: 970000},
		{ID: 2, U: 2, V: 3, Rate: 125e6, QSize: 970000},
		{ID: 3, U: 1, V: 3, Rate: 125e6, QSize: 970000},
	}
	for _, e := range edges {
		require.NoError(t, st.AddEdge(e))
	}

	require.NoError(t, st.AddHost(topology.Host{
		Node: topology.Node{ID: 4, Name: "h1"}, ConnectedSwitch: 1,
		HostBuffer: 970000, SwitchBuffer: 970000, LinkRate: 125e6,
	}))
	require.NoError(t, st.AddHost(topology.Host{
		Node: topology.Node{ID: 5, Name: "h2"}, ConnectedSwitch: 2,
		HostBuffer: 970000, SwitchBuffer: 970000, LinkRate: 125e6,
	}))

	return st
}

func directPath() []topology.ArcID {
	return []topology.ArcID{{From: 4, To: 1}, {From: 1, To: 2}, {From: 2, To: 5}}
}

type ReserveSuite struct {
	suite.Suite
	store *topology.Store
}

func (s *ReserveSuite) SetupTest() {
	s.store = ringTopology(s.T(), 4)
}

func (s *ReserveSuite) TestReserveThenRefreshSucceedsWithinBudget() {
	r := dnc.Reservation{Path: directPath(), Rate: 25e6, Burst: 70, Deadline: 150e-3}
	v, err := dnc.ReserveResources(s.store, 0, r)
	s.Require().NoError(err)
	s.Require().Nil(v)

	v, err = dnc.RefreshAndValidate(s.store)
	s.Require().NoError(err)
	s.Require().Nil(v)

	arc := topology.ArcID{From: 1, To: 2}
	ls, ok := s.store.Get(arc, 0)
	s.Require().True(ok)
	s.Require().Equal(25e6, ls.Arrival.Rate)
}

func (s *ReserveSuite) TestDeadlineTooTightIsRejected() {
	r := dnc.Reservation{Path: directPath(), Rate: 100, Burst: 10, Deadline: 1e-9}
	v, err := dnc.ReserveResources(s.store, 0, r)
	s.Require().NoError(err)
	s.Require().NotNil(v)
	s.Require().Equal(dnc.FlowDeadline, v.Kind)
}

func (s *ReserveSuite) TestOverRateCausesRateViolation() {
	r := dnc.Reservation{Path: directPath(), Rate: 200e6, Burst: 1000, Deadline: 1}
	v, err := dnc.ReserveResources(s.store, 0, r)
	s.Require().NoError(err)
	s.Require().NotNil(v)
	s.Require().Equal(dnc.Rate, v.Kind)
}

func (s *ReserveSuite) TestReserveThenRemoveRestoresState() {
	r := dnc.Reservation{Path: directPath(), Rate: 25e6, Burst: 70, Deadline: 150e-3}
	before, _ := s.store.Get(topology.ArcID{From: 1, To: 2}, 0)

	v, err := dnc.ReserveResources(s.store, 0, r)
	s.Require().NoError(err)
	s.Require().Nil(v)
	_, err = dnc.RefreshAndValidate(s.store)
	s.Require().NoError(err)

	s.Require().NoError(dnc.RemoveResources(s.store, 0, r))

	after, _ := s.store.Get(topology.ArcID{From: 1, To: 2}, 0)
	s.Require().InDelta(before.Arrival.Rate, after.Arrival.Rate, 1e-6)
}

func (s *ReserveSuite) TestHostHopAlwaysAccountedAtLayerZero() {
	r := dnc.Reservation{Path: directPath(), Rate: 1e6, Burst: 10, Deadline: 1}
	// Reserve at priority 2; the host hop (4->1) must still land on layer 0.
	v, err := dnc.ReserveResources(s.store, 2, r)
	s.Require().NoError(err)
	s.Require().Nil(v)

	hostArc := topology.ArcID{From: 4, To: 1}
	ls0, _ := s.store.Get(hostArc, 0)
	s.Require().Equal(1e6, ls0.Arrival.Rate)

	ls2, _ := s.store.Get(hostArc, 2)
	s.Require().Equal(ls0.Arrival, ls2.Arrival) // host-egress arc: identical across layers
}

func TestReserveSuite(t *testing.T) {
	suite.Run(t, new(ReserveSuite))
}

func TestRefreshAndValidateIdempotentWithNoIntervingReserve(t *testing.T) {
	store := ringTopology(t, 4)
	r := dnc.Reservation{Path: directPath(), Rate: 25e6, Burst: 70, Deadline: 150e-3}
	v, err := dnc.ReserveResources(store, 0, r)
	require.NoError(t, err)
	require.Nil(t, v)

	v1, err := dnc.RefreshAndValidate(store)
	require.NoError(t, err)
	require.Nil(t, v1)

	snapshot := store.Clone()

	v2, err := dnc.RefreshAndValidate(store)
	require.NoError(t, err)
	require.Nil(t, v2)

	for _, arc := range store.AllArcs() {
		for p := 0; p < store.Priorities(); p++ {
			want, _ := snapshot.Get(arc, p)
			got, _ := store.Get(arc, p)
			require.Equal(t, want, got, "arc %s priority %d should be unchanged by a second refresh", arc, p)
		}
	}
}
