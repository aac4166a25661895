package domain

//go:generate mockgen -destination=mocks/gateway_mock.go -package=mocks github.com/smallbiznis/paycore/internal/payment/domain Gateway,Guard
