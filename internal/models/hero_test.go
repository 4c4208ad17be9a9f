package models

import (
	"testing"
)

func TestHeroRecordValidate(t *testing.T) {
	tests := []struct {
		name   string
		record HeroRecord
		valid  bool
	}{
		{
			"Complete record",
			HeroRecord{Name: "Jane Doe", ProfileURL: "https://aws.amazon.com/developer/community/heroes/jane-doe/", Subject: "AWS Serverless Hero"},
			true,
		},
		{
			"Missing name",
			HeroRecord{ProfileURL: "https://aws.amazon.com/developer/community/heroes/jane-doe/", Subject: "AWS Serverless Hero"},
			false,
		},
		{
			"Missing profile URL",
			HeroRecord{Name: "Jane Doe", Subject: "AWS Serverless Hero"},
			false,
		},
		{
			"Relative profile URL",
			HeroRecord{Name: "Jane Doe", ProfileURL: "/developer/community/heroes/jane-doe/", Subject: "AWS Serverless Hero"},
			false,
		},
		{
			"Missing subject",
			HeroRecord{Name: "Jane Doe", ProfileURL: "https://aws.amazon.com/developer/community/heroes/jane-doe/"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v (issues: %v)", got, tt.valid, tt.record.Validate())
			}
		})
	}
}

func TestHeroRecordNormalize(t *testing.T) {
	record := HeroRecord{
		Name:       "  Jane Doe ",
		ProfileURL: " https://aws.amazon.com/developer/community/heroes/jane-doe/ ",
		Subject:    "AWS Container Hero\n",
	}

	record.Normalize()

	if record.Name != "Jane Doe" {
		t.Errorf("Name = %q, want %q", record.Name, "Jane Doe")
	}
	if record.ProfileURL != "https://aws.amazon.com/developer/community/heroes/jane-doe/" {
		t.Errorf("ProfileURL = %q", record.ProfileURL)
	}
	if record.Subject != "AWS Container Hero" {
		t.Errorf("Subject = %q, want %q", record.Subject, "AWS Container Hero")
	}
}

func TestHeroRecordKey(t *testing.T) {
	a := HeroRecord{Name: "Jane Doe", ProfileURL: "https://aws.amazon.com/developer/community/heroes/jane-doe/"}
	b := HeroRecord{Name: "Jane D.", ProfileURL: "https://aws.amazon.com/developer/community/heroes/jane-doe/"}

	if a.Key() != b.Key() {
		t.Error("records with the same profile URL must share a key")
	}
}
