// foodloop - Perishable food inventory for retailers, NGOs and farmers
// Copyright (C) 2026  foodloop contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// token mints HS256 bearer tokens for local development and smoke tests.
//
//	token --uid shop-1 --role Retailer --city Pune --pincode 411001
//	token --new-key
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/jredh-dev/foodloop/config"
	"github.com/jredh-dev/foodloop/internal/auth"
)

func main() {
	envFile := pflag.String("config-env", "", "Path to a .env file (default .env)")
	newKey := pflag.Bool("new-key", false, "Print a fresh signing key and exit")
	uid := pflag.String("uid", "", "Subject user ID")
	email := pflag.String("email", "", "Email address")
	roles := pflag.StringSlice("role", nil, "Role(s): Retailer, Ngo, Farmer, Admin")
	city := pflag.String("city", "", "City")
	pincode := pflag.String("pincode", "", "Postal code")
	contact := pflag.String("contact", "", "Contact number")
	ttl := pflag.Duration("ttl", 24*time.Hour, "Token lifetime")
	pflag.Parse()

	if *newKey {
		key, err := auth.GenerateSigningKey()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	cfg := config.Load(*envFile)
	if cfg.JWT.SigningKey == "" {
		fmt.Fprintln(os.Stderr, "JWT_SIGNING_KEY is not set (generate one with --new-key)")
		os.Exit(1)
	}
	if *uid == "" || len(*roles) == 0 {
		fmt.Fprintln(os.Stderr, "--uid and --role are required")
		pflag.Usage()
		os.Exit(2)
	}

	svc := auth.NewService(cfg.JWT.SigningKey, cfg.JWT.Issuer, nil)
	tok, err := svc.GenerateToken(auth.Principal{
		ID:      *uid,
		Email:   *email,
		Roles:   *roles,
		City:    *city,
		Pincode: *pincode,
		Contact: *contact,
	}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
