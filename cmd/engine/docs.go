package main

//go:generate swag init -g cmd/engine/main.go -o docs

// @title           TradePool Engine API
// @version         0.1.0
// @description     Block purchase, pool allocation, trade cycles and profit distribution.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
