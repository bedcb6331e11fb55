// Command seed loads demo users, cases and payout grids into a fresh
// database for local development.
package main

import (
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/credvue/fieldcollect/internal/config"
	"github.com/credvue/fieldcollect/internal/database"
	"github.com/credvue/fieldcollect/internal/models"
	"github.com/credvue/fieldcollect/internal/utils"
)

func main() {
	fmt.Println("FieldCollect Demo Data Seeder")

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("Connected to database")

	// Run migrations first
	fmt.Println("Running database migrations...")
	err = db.AutoMigrate(
		&models.User{},
		&models.Case{},
		&models.CaseUpload{},
		&models.Feedback{},
		&models.PayoutGrid{},
		&models.PerformanceMetric{},
		&models.Referral{},
	)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// Check if data already exists
	var userCount int64
	db.Model(&models.User{}).Count(&userCount)
	if userCount > 0 {
		fmt.Printf("Database already has %d users. Clear it first? (y/N): ", userCount)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted. Database not modified.")
			return
		}

		fmt.Println("Clearing existing data...")
		db.Exec("DELETE FROM feedbacks")
		db.Exec("DELETE FROM performance_metrics")
		db.Exec("DELETE FROM referrals")
		db.Exec("DELETE FROM payout_grids")
		db.Exec("DELETE FROM case_uploads")
		db.Exec("DELETE FROM cases")
		db.Exec("DELETE FROM users")
	}

	fmt.Println("Creating demo data...")

	// 1. One user per role plus a couple of extra executives
	password, err := utils.HashPassword("Password@123")
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	seedUsers := []models.User{
		{Username: "admin", Email: "admin@fieldcollect.local", Role: models.RoleAdmin, FirstName: "System", LastName: "Admin"},
		{Username: "manager", Email: "manager@fieldcollect.local", Role: models.RoleManager, FirstName: "Meera", LastName: "Nair"},
		{Username: "supervisor", Email: "supervisor@fieldcollect.local", Role: models.RoleSupervisor, FirstName: "Arjun", LastName: "Rao"},
		{Username: "hr", Email: "hr@fieldcollect.local", Role: models.RoleHR, FirstName: "Kavita", LastName: "Singh"},
		{Username: "analytic", Email: "analytic@fieldcollect.local", Role: models.RoleAnalytic, FirstName: "Dev", LastName: "Sharma"},
		{Username: "ravi", Email: "ravi@fieldcollect.local", Role: models.RoleFieldExecutive, FirstName: "Ravi", LastName: "Kumar", EmpID: "EMP-1001"},
		{Username: "priya", Email: "priya@fieldcollect.local", Role: models.RoleFieldExecutive, FirstName: "Priya", LastName: "Patel", EmpID: "EMP-1002"},
	}
	for i := range seedUsers {
		seedUsers[i].Password = password
		if err := db.Create(&seedUsers[i]).Error; err != nil {
			log.Fatalf("Failed to create user %s: %v", seedUsers[i].Username, err)
		}
	}
	fmt.Printf("Created %d users (password: Password@123)\n", len(seedUsers))

	ravi := seedUsers[5]
	priya := seedUsers[6]

	// 2. Payout grids
	grids := []models.PayoutGrid{
		{Bank: "HDFC", Product: "PL", BKT: "BKT1", TargetPercent: dec("60"), PayoutType: models.PayoutTypeFixed, PayoutAmount: dec("200"), NormBonus: dec("50"), RollbackBonus: dec("25")},
		{Bank: "HDFC", Product: "PL", BKT: "BKT2", TargetPercent: dec("50"), PayoutType: models.PayoutTypeFixed, PayoutAmount: dec("300"), NormBonus: dec("75"), RollbackBonus: dec("40")},
		{Bank: "AXIS", Product: "CC", BKT: "BKT1", TargetPercent: dec("55"), PayoutType: models.PayoutTypePercentage, PayoutAmount: dec("2"), NormBonus: dec("0"), RollbackBonus: dec("0")},
	}
	for i := range grids {
		if err := db.Create(&grids[i]).Error; err != nil {
			log.Fatalf("Failed to create payout grid: %v", err)
		}
	}
	fmt.Printf("Created %d payout grids\n", len(grids))

	// 3. Cases spread across the two executives, around one anchor point
	now := time.Now().UTC()
	anchorLat, anchorLng := 19.0760, 72.8777
	banks := []string{"HDFC", "HDFC", "AXIS"}
	products := []string{"PL", "PL", "CC"}
	for i := 0; i < 30; i++ {
		lat := anchorLat + float64(i)*0.01
		lng := anchorLng + float64(i%7)*0.01
		execID := ravi.ID
		empID := ravi.EmpID
		if i%2 == 1 {
			execID = priya.ID
			empID = priya.EmpID
		}
		c := models.Case{
			AccID:        fmt.Sprintf("ACC%05d", i+1),
			CustID:       fmt.Sprintf("CUST%05d", i+1),
			CustomerName: fmt.Sprintf("Customer %d", i+1),
			PhoneNumber:  fmt.Sprintf("98%08d", i+1),
			Address:      fmt.Sprintf("%d MG Road, Mumbai", i+1),
			Pincode:      "400001",
			Lat:          &lat,
			Lng:          &lng,
			POSAmount:    dec("50000").Add(decimal.NewFromInt(int64(i * 1000))),
			OverdueAmt:   dec("12000"),
			DPD:          30 + i*5,
			BKT:          fmt.Sprintf("BKT%d", i%2+1),
			ProductType:  products[i%3],
			BankName:     banks[i%3],
			NPAStatus:    "STANDARD",
			Priority:     "MEDIUM",
			EmpID:        empID,
			ExecutiveID:  &execID,
			Month:        int(now.Month()),
			Year:         now.Year(),
		}
		if err := db.Create(&c).Error; err != nil {
			log.Fatalf("Failed to create case %s: %v", c.AccID, err)
		}
	}
	fmt.Println("Created 30 cases")

	fmt.Println("Seeding complete")
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
