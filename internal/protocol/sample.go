package protocol

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"pangalink/entity"
	"pangalink/internal/codec"
	"pangalink/internal/validate"
	"pangalink/services"
)

const (
	sampleStamp    = "12345"
	sampleAmount   = "150"
	sampleRef      = "1234561"
	sampleReceiver = "ÕIE MÄGER"
	sampleCharset  = "ISO-8859-1"
)

// Sample builds a merchant request signed with the merchant key or the shared
// secret of the project. urlPrefix is the public address of the simulator,
// the return addresses point to the project page.
func Sample(bank *entity.Bank, project *entity.Project, urlPrefix string, opts *services.SampleOptions, now time.Time) (Adapter, error) {
	if opts == nil {
		opts = &services.SampleOptions{}
	}
	returnURL := func(action string) string {
		return fmt.Sprintf("%s/project/%s?payment_action=%s", urlPrefix, project.Id, action)
	}

	var message Adapter
	switch bank.Type {
	case entity.FamilyIPizza:
		message = ipizzaSample(bank, project, opts, returnURL, now)
	case entity.FamilySolo, entity.FamilyAAB, entity.FamilySamlink:
		message = netSample(bank, project, opts, returnURL)
	case entity.FamilyEC:
		message = ecSample(bank, project, opts, returnURL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFamily, bank.Type)
	}
	if err := message.SignClient(); err != nil {
		return nil, fmt.Errorf("sign sample: %w", err)
	}
	return message, nil
}

func ipizzaSample(bank *entity.Bank, project *entity.Project, opts *services.SampleOptions, returnURL func(string) string, now time.Time) *ipizza {
	service := "1001"
	if !bank.AllowsService(service) {
		service = "1011"
		if !bank.AllowsService(service) {
			service = "1002"
		}
	}
	charset := sampleCharset
	switch {
	case bank.AllowsCharset(codec.UTF8):
		charset = codec.UTF8
	case len(bank.AllowedCharsets) > 0:
		charset = bank.AllowedCharsets[0]
	}

	fields := entity.Fields{
		{Key: "VK_SERVICE", Value: service},
		{Key: "VK_VERSION", Value: ipizzaVersion},
		{Key: "VK_SND_ID", Value: project.Uid},
		{Key: "VK_STAMP", Value: sampleStamp},
		{Key: "VK_AMOUNT", Value: firstNonEmpty(opts.Amount, sampleAmount)},
		{Key: "VK_CURR", Value: "EUR"},
	}
	if service != "1002" {
		fields.Set("VK_ACC", firstNonEmpty(opts.Account, project.IpizzaReceiverAccount, bank.AccountNr))
		fields.Set("VK_NAME", firstNonEmpty(opts.Name, project.IpizzaReceiverName, sampleReceiver))
	}
	if bank.UseVKPank {
		fields.Set("VK_PANK", "40100")
	}
	fields.Set("VK_REF", firstNonEmpty(opts.Ref, sampleRef))
	fields.Set("VK_LANG", ipizzaDefaultLanguage)
	fields.Set("VK_MSG", firstNonEmpty(opts.Message, "Torso Tiger"))
	fields.Set(bank.ReturnAddress, returnURL("success"))
	if bank.CancelAddress != "" && bank.CancelAddress != bank.ReturnAddress {
		fields.Set(bank.CancelAddress, returnURL("cancel"))
	}
	if bank.RejectAddress != "" && bank.RejectAddress != bank.ReturnAddress && bank.RejectAddress != bank.CancelAddress {
		fields.Set(bank.RejectAddress, returnURL("reject"))
	}
	if service == "1011" {
		fields.Set("VK_DATETIME", now.Format(validate.LayoutDateTime))
	}
	if bank.UseVKTimeLimit {
		fields.Set("VK_TIME_LIMIT", now.Add(time.Hour).Format(validate.LayoutTimeLimit))
	}
	if bank.CharsetField != "" {
		fields.Set(bank.CharsetField, charset)
	}

	m := newIPizza(bank, fields, charset)
	m.project = project
	return m
}

func netSample(bank *entity.Bank, project *entity.Project, opts *services.SampleOptions, returnURL func(string) string) *netMessage {
	profile := netProfileOf(bank)
	p := profile.prefix
	var fields entity.Fields
	switch bank.Type {
	case entity.FamilySamlink:
		fields = entity.Fields{
			{Key: p + "VERSION", Value: "002"},
			{Key: p + "STAMP", Value: sampleStamp},
			{Key: p + "SELLER_ID", Value: project.Uid},
			{Key: p + "AMOUNT", Value: firstNonEmpty(opts.Amount, sampleAmount)},
			{Key: p + "REF", Value: firstNonEmpty(opts.Ref, sampleRef)},
			{Key: p + "DATE", Value: "EXPRESS"},
			{Key: p + "MSG", Value: firstNonEmpty(opts.Message, "testmakseÄ")},
			{Key: p + "CUR", Value: "EUR"},
			{Key: p + "CONFIRM", Value: "YES"},
		}
	default:
		version, account := "0003", firstNonEmpty(opts.Account, bank.AccountNr)
		if bank.Type == entity.FamilyAAB {
			version, account = "0002", firstNonEmpty(opts.Account, "3936363002092492")
		}
		fields = entity.Fields{
			{Key: p + "VERSION", Value: version},
			{Key: p + "STAMP", Value: sampleStamp},
			{Key: p + "RCV_ID", Value: project.Uid},
			{Key: p + "RCV_ACCOUNT", Value: account},
			{Key: p + "RCV_NAME", Value: firstNonEmpty(opts.Name, sampleReceiver)},
			{Key: p + "LANGUAGE", Value: "3"},
			{Key: p + "AMOUNT", Value: firstNonEmpty(opts.Amount, sampleAmount)},
			{Key: p + "REF", Value: firstNonEmpty(opts.Ref, sampleRef)},
			{Key: p + "DATE", Value: "EXPRESS"},
			{Key: p + "MSG", Value: firstNonEmpty(opts.Message, "testmakseÄ")},
			{Key: p + "CUR", Value: "EUR"},
			{Key: p + "CONFIRM", Value: "YES"},
			{Key: p + "KEYVERS", Value: "0001"},
		}
	}
	fields.Set(p+bank.ReturnAddress, returnURL("success"))
	if bank.CancelAddress != "" && bank.CancelAddress != bank.ReturnAddress {
		fields.Set(p+bank.CancelAddress, returnURL("cancel"))
	}
	if bank.RejectAddress != "" && bank.RejectAddress != bank.ReturnAddress {
		fields.Set(p+bank.RejectAddress, returnURL("reject"))
	}

	m := newNet(bank, fields, sampleCharset)
	m.project = project
	return m
}

func ecSample(bank *entity.Bank, project *entity.Project, opts *services.SampleOptions, returnURL func(string) string) *ec {
	cents := "1336"
	if amount, err := strconv.ParseFloat(opts.Amount, 64); err == nil && amount > 0 {
		cents = strconv.FormatInt(int64(math.Round(amount*100)), 10)
	}
	field := bank.CharsetField
	if field == "" {
		field = ecCharsetField
	}
	charset := bank.DefaultCharset
	if bank.AllowsCharset(codec.UTF8) {
		charset = codec.UTF8
	}
	fields := entity.Fields{
		{Key: "action", Value: ecActionRequest},
		{Key: "ver", Value: "004"},
		{Key: "id", Value: project.Uid},
		{Key: "ecuno", Value: "1392644629"},
		{Key: "eamount", Value: cents},
		{Key: "cur", Value: "EUR"},
		{Key: "datetime", Value: "20140217154349"},
		{Key: "feedBackUrl", Value: returnURL("success")},
		{Key: "delivery", Value: "S"},
		{Key: "lang", Value: "en"},
		{Key: field, Value: charset},
	}
	m := newEC(bank, fields, charset)
	m.project = project
	return m
}
