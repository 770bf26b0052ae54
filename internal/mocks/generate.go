package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Provider --dir ../domain/player --output domain/player --outpkg playermock --filename provider_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Provider --dir ../domain/league --output domain/league --outpkg leaguemock --filename provider_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Provider --dir ../domain/picks --output domain/picks --outpkg picksmock --filename provider_mock.go
