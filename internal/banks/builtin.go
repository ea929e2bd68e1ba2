package banks

import "pangalink/entity"

var (
	ipizzaLengths = map[string]int{
		"VK_STAMP":  20,
		"VK_AMOUNT": 12,
		"VK_ACC":    34,
		"VK_NAME":   70,
		"VK_REF":    35,
		"VK_MSG":    95,
		"VK_RETURN": 255,
		"VK_CANCEL": 255,
		"VK_RID":    30,
		"VK_NONCE":  50,
	}
	soloLengths = map[string]int{
		"STAMP":       20,
		"RCV_ID":      15,
		"RCV_ACCOUNT": 21,
		"RCV_NAME":    30,
		"AMOUNT":      19,
		"REF":         20,
		"MSG":         210,
		"RETURN":      120,
		"CANCEL":      120,
		"REJECT":      120,
	}
	latin1AndUTF8 = []string{"ISO-8859-1", "UTF-8"}
)

func ipizzaBank(key, name, id, prefix, account string) entity.Bank {
	return entity.Bank{
		Key:             key,
		Name:            name,
		Type:            entity.FamilyIPizza,
		ID:              id,
		AccountNr:       account,
		Prefix:          prefix,
		Country:         "EE",
		DefaultCharset:  "ISO-8859-1",
		AllowedCharsets: latin1AndUTF8,
		CharsetField:    "VK_ENCODING",
		ReturnAddress:   "VK_RETURN",
		CancelAddress:   "VK_CANCEL",
		RejectAddress:   "VK_CANCEL",
		ReturnMethod:    "POST",
		FieldLength:     ipizzaLengths,
	}
}

func builtin() []entity.Bank {
	swedbank := ipizzaBank("swedbank", "Swedbank", "HP", "22", "EE382200221020145685")
	swedbank.DefaultCharset = "UTF-8"
	swedbank.ForceIban = true

	seb := ipizzaBank("seb", "SEB", "EYP", "10", "EE911010220034562011")
	seb.CharsetField = "VK_CHARSET"
	seb.DefaultCharset = "UTF-8"
	seb.UTF8Length = "bytes"
	seb.DisallowQuery = true

	danske := ipizzaBank("danskebank", "Danske Bank", "SAMPOPANK", "33", "EE403300333416110002")
	danske.AllowGet = true

	lhv := ipizzaBank("lhv", "LHV Pank", "LHV", "77", "EE287700771001234567")
	lhv.DefaultCharset = "UTF-8"
	lhv.AllowedServices = []string{"1011", "1012", "4011", "4012"}

	krediidipank := ipizzaBank("krediidipank", "Krediidipank", "KREP", "42", "EE964200420012345678")
	krediidipank.UseVKPank = true
	krediidipank.UseVKTimeLimit = true

	luminor := ipizzaBank("luminor", "Luminor", "NORDEA", "17", "EE881700017001234561")
	luminor.DefaultCharset = "UTF-8"
	luminor.ForceCharset = "UTF-8"
	luminor.AllowedServices = []string{"1011", "1012", "4011", "4012"}

	coop := ipizzaBank("coop", "Coop Pank", "KREP", "42", "EE964200420012345678")
	coop.DefaultCharset = "UTF-8"
	coop.AllowedServices = []string{"1011", "1012", "4011", "4012"}

	return []entity.Bank{
		swedbank,
		seb,
		danske,
		lhv,
		krediidipank,
		luminor,
		coop,
		{
			Key:            "nordea",
			Name:           "Nordea",
			Type:           entity.FamilySolo,
			AccountNr:      "EE881700017001234561",
			Prefix:         "17",
			Country:        "EE",
			DefaultCharset: "ISO-8859-1",
			ReturnAddress:  "RETURN",
			CancelAddress:  "CANCEL",
			RejectAddress:  "REJECT",
			ReturnMethod:   "GET",
			FieldLength:    soloLengths,
		},
		{
			Key:            "aab",
			Name:           "Ålandsbanken",
			Type:           entity.FamilyAAB,
			AccountNr:      "FI2112345600000785",
			Country:        "FI",
			DefaultCharset: "ISO-8859-1",
			ReturnAddress:  "RETURN",
			CancelAddress:  "CANCEL",
			RejectAddress:  "REJECT",
			ReturnMethod:   "GET",
		},
		{
			Key:            "samlink",
			Name:           "Samlink",
			Type:           entity.FamilySamlink,
			AccountNr:      "FI2112345600000785",
			Country:        "FI",
			DefaultCharset: "ISO-8859-1",
			ReturnAddress:  "RETURN",
			CancelAddress:  "CANCEL",
			RejectAddress:  "REJECT",
			ReturnMethod:   "GET",
		},
		{
			Key:             "ec",
			Name:            "Krediidikaardid",
			Type:            entity.FamilyEC,
			Country:         "EE",
			DefaultCharset:  "ISO-8859-1",
			AllowedCharsets: latin1AndUTF8,
			CharsetField:    "charEncoding",
			ReturnMethod:    "POST",
		},
	}
}
