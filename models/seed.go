package models

import "github.com/shopspring/decimal"

// DefaultCountryPricing is the reference pricing loaded on startup when the
// table is empty. The DEFAULT row is mandatory.
var DefaultCountryPricing = []CountryPricing{
	{
		CountryCode:           DefaultCountryCode,
		CountryName:           "International",
		Region:                "international",
		Currency:              "USD",
		StudentFee:            decimal.NewFromInt(50),
		InvestorFee:           decimal.NewFromInt(150),
		AllowedPaymentMethods: []string{MethodPaddle, MethodCrypto},
	},
	{
		CountryCode:           "NG",
		CountryName:           "Nigeria",
		Region:                "nigeria",
		Currency:              "NGN",
		StudentFee:            decimal.NewFromInt(25000),
		InvestorFee:           decimal.NewFromInt(75000),
		AllowedPaymentMethods: []string{MethodPaystack, MethodBankTransfer},
	},
	{
		CountryCode:           "GH",
		CountryName:           "Ghana",
		Region:                "west_africa",
		Currency:              "GHS",
		StudentFee:            decimal.NewFromInt(400),
		InvestorFee:           decimal.NewFromInt(1200),
		AllowedPaymentMethods: []string{MethodPaystack, MethodCrypto},
	},
	{
		CountryCode:           "KE",
		CountryName:           "Kenya",
		Region:                "east_africa",
		Currency:              "KES",
		StudentFee:            decimal.NewFromInt(4000),
		InvestorFee:           decimal.NewFromInt(12000),
		AllowedPaymentMethods: []string{MethodPaystack, MethodCrypto},
	},
	{
		CountryCode:           "ZA",
		CountryName:           "South Africa",
		Region:                "southern_africa",
		Currency:              "ZAR",
		StudentFee:            decimal.NewFromInt(600),
		InvestorFee:           decimal.NewFromInt(1800),
		AllowedPaymentMethods: []string{MethodPaystack, MethodCrypto},
	},
	{
		CountryCode:           "GB",
		CountryName:           "United Kingdom",
		Region:                "international",
		Currency:              "GBP",
		StudentFee:            decimal.NewFromInt(40),
		InvestorFee:           decimal.NewFromInt(120),
		AllowedPaymentMethods: []string{MethodPaddle, MethodCrypto},
	},
	{
		CountryCode:           "US",
		CountryName:           "United States",
		Region:                "international",
		Currency:              "USD",
		StudentFee:            decimal.NewFromInt(50),
		InvestorFee:           decimal.NewFromInt(150),
		AllowedPaymentMethods: []string{MethodPaddle, MethodCrypto},
	},
}

// DefaultTokens are the wallet currencies created on startup.
var DefaultTokens = []Token{
	{Symbol: "BLC", Name: "BlackCoin", Decimals: 2},
}

// DefaultMissions seeds the catalog for a fresh database.
var DefaultMissions = []Mission{
	{Title: "Watch your first lesson", MissionType: "onboarding", XPReward: 50, CoinReward: 10, EstMinutes: 10, IsActive: true, OrderIndex: 1},
	{Title: "Complete a quiz", MissionType: "daily", XPReward: 30, CoinReward: 5, EstMinutes: 5, IsActive: true, OrderIndex: 2},
	{Title: "Review the market journal", MissionType: "daily", XPReward: 20, CoinReward: 5, EstMinutes: 15, IsActive: true, OrderIndex: 3},
}
