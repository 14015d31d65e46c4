package action

import (
	"github.com/stretchr/testify/mock"

	"github.com/dhd-bridge/dhd-go/pkg/router"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Register(p string, h router.Handle) error {
	args := m.Called(p, h)
	return args.Error(0)
}

func (m *mockClient) Unregister(p string, h router.Handle) bool {
	args := m.Called(p, h)
	return args.Bool(0)
}

func (m *mockClient) RequestSet(p string, value any) error {
	args := m.Called(p, value)
	return args.Error(0)
}

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) RenderButton(context string, kind Kind, active bool) {
	m.Called(context, kind, active)
}

func (m *mockRenderer) RenderDial(context string, value float64) {
	m.Called(context, value)
}
